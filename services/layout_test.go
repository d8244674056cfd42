package services

import (
	"strings"
	"testing"

	"myevidence/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const layoutMarkdown = `# Sepsis Guideline 2024

Intro paragraph without any directive content here.

## Recommendations

- We recommend early antibiotics within one hour (strong recommendation, moderate certainty).
- Avoid starch solutions for fluid resuscitation.
  This continuation line is indented.

| Recommendation | Grade |
| --- | --- |
| Vasopressors should target a MAP of 65 mmHg | 1B |

> Boxed statement: clinicians should reassess fluid status daily.

## Methods

We searched three databases and screened titles and abstracts in duplicate.
`

func TestSplitMarkdownElements(t *testing.T) {
	els := SplitMarkdownElements(layoutMarkdown)
	require.NotEmpty(t, els)

	byKind := map[string][]providers.Element{}
	for _, el := range els {
		byKind[el.Kind] = append(byKind[el.Kind], el)
	}

	require.Len(t, byKind["heading"], 3)
	assert.Equal(t, "Sepsis Guideline 2024", byKind["heading"][0].Content)

	require.Len(t, byKind["list_item"], 2)
	assert.Equal(t, "Recommendations", byKind["list_item"][0].Section)
	assert.Contains(t, byKind["list_item"][1].Content, "This continuation line is indented.")

	require.Len(t, byKind["table_row"], 1)
	assert.Contains(t, byKind["table_row"][0].Content, "TABLE HEADER: | Recommendation | Grade |")
	assert.Contains(t, byKind["table_row"][0].Content, "Vasopressors should target")

	// Blockquote wird zu Text, Intro- und Methods-Absätze ebenfalls
	var texts []string
	for _, el := range byKind["text"] {
		texts = append(texts, el.Content)
	}
	assert.Contains(t, strings.Join(texts, "\n"), "reassess fluid status daily")

	// Methods-Absatz hängt unter der Methods-Überschrift
	last := byKind["text"][len(byKind["text"])-1]
	assert.Equal(t, "Methods", last.Section)
}

func TestSplitMarkdownElementsEmpty(t *testing.T) {
	assert.Nil(t, SplitMarkdownElements(""))
	assert.Nil(t, SplitMarkdownElements("\n\n  \n"))
}

func TestBoundElementsSplitsLongContent(t *testing.T) {
	long := strings.Repeat("x", elementMaxChars+10)
	els := boundElements([]providers.Element{{Kind: "text", Content: long}})
	require.Len(t, els, 2)
	assert.Len(t, els[0].Content, elementMaxChars)
	assert.Len(t, els[1].Content, 10)
}

func TestIsCandidateRecommendation(t *testing.T) {
	assert.True(t, IsCandidateRecommendation("We recommend early antibiotics within one hour of recognition."))
	assert.True(t, IsCandidateRecommendation("Vasopressors, Grade 1B, should maintain adequate perfusion pressure."))
	assert.True(t, IsCandidateRecommendation("Recommendation 12: reassess fluid status at least daily."))
	// zu kurz
	assert.False(t, IsCandidateRecommendation("We recommend."))
	// keine Hinweise auf eine Empfehlung
	assert.False(t, IsCandidateRecommendation("We searched three databases and screened titles in duplicate."))
}

func TestCandidateElementsFiltersAndKeepsOrder(t *testing.T) {
	els := SplitMarkdownElements(layoutMarkdown)
	cands := CandidateElements(els)
	require.NotEmpty(t, cands)

	for _, c := range cands {
		assert.NotEqual(t, "heading", c.Kind)
	}
	assert.Contains(t, cands[0].Content, "early antibiotics")
	assert.Contains(t, cands[1].Content, "Avoid starch solutions")

	joined := ""
	for _, c := range cands {
		joined += c.Content + "\n"
	}
	assert.NotContains(t, joined, "searched three databases")
}
