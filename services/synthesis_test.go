package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"myevidence/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func synthesisFixture(t *testing.T) (*SynthesisService, *mockExtractor) {
	db := newTestDB(t)
	n := 200
	require.NoError(t, db.Create(&models.Paper{
		PMID:               "100",
		Title:              "Beta blockers in HF",
		Journal:            "NEJM",
		Year:               "2022",
		Abstract:           "full abstract text",
		PatientN:           &n,
		Results:            "- mortality reduced",
		AuthorsConclusions: "Beta blockers reduce mortality.",
		SavedAt:            time.Now(),
	}).Error)

	require.NoError(t, db.Create(&models.Guideline{
		ID:       "g1",
		Filename: "hf.pdf",
		SHA256:   "abc",
		Name:     "HF Guideline",
		PubYear:  "2023",
	}).Error)
	recs := []models.Recommendation{
		{GuidelineID: "g1", Ord: 0, Text: "Give beta blockers.", Strength: "Class I", Status: models.RecStatusRelevant},
		{GuidelineID: "g1", Ord: 1, Text: "Do not give drug X.", Status: models.RecStatusIrrelevant},
	}
	require.NoError(t, db.Create(&recs).Error)

	extractor := &mockExtractor{}
	curation := NewCurationService(db, extractor, testLogger())
	return NewSynthesisService(db, extractor, curation, testLogger()), extractor
}

func TestGeneratePacksStudyAndGuidelineBlocks(t *testing.T) {
	svc, extractor := synthesisFixture(t)

	var gotInstructions, gotInput string
	extractor.SynthesizeFunc = func(ctx context.Context, instructions, input string) (string, error) {
		gotInstructions = instructions
		gotInput = input
		return "  a one paragraph synthesis  ", nil
	}

	text, err := svc.Generate(context.Background(), SynthesisInput{
		PMIDs:        "100",
		GuidelineIDs: "g1",
		Question:     "Do beta blockers help?",
	})
	require.NoError(t, err)
	assert.Equal(t, "a one paragraph synthesis", text)

	assert.Contains(t, gotInstructions, "ONE paragraph")
	assert.Contains(t, gotInput, "Focus question: Do beta blockers help?")
	assert.Contains(t, gotInput, "STUDY 1: Beta blockers in HF (NEJM, 2022) | PMID 100")
	assert.Contains(t, gotInput, "- N: 200")
	assert.Contains(t, gotInput, "GUIDELINE 1: HF Guideline (2023)")
	assert.Contains(t, gotInput, "Give beta blockers. [Class I]")
	// nur als relevant kuratierte Empfehlungen gehen mit
	assert.NotContains(t, gotInput, "Do not give drug X.")
	// ohne include_abstract bleiben die Rohdaten draußen
	assert.NotContains(t, gotInput, "full abstract text")
}

func TestGenerateAnswerModeUsesAnswerPrompt(t *testing.T) {
	svc, extractor := synthesisFixture(t)

	var gotInstructions string
	extractor.SynthesizeFunc = func(ctx context.Context, instructions, input string) (string, error) {
		gotInstructions = instructions
		return "answer", nil
	}

	_, err := svc.Generate(context.Background(), SynthesisInput{PMIDs: "100", Mode: "answer", Question: "q"})
	require.NoError(t, err)
	assert.Contains(t, gotInstructions, "focused clinical question")
}

func TestGenerateIncludeAbstractReplacesFields(t *testing.T) {
	svc, extractor := synthesisFixture(t)

	var gotInput string
	extractor.SynthesizeFunc = func(ctx context.Context, instructions, input string) (string, error) {
		gotInput = input
		return "ok", nil
	}

	_, err := svc.Generate(context.Background(), SynthesisInput{PMIDs: "100", IncludeAbstract: true})
	require.NoError(t, err)
	assert.Contains(t, gotInput, "full abstract text")
	assert.NotContains(t, gotInput, "- N: 200")
}

func TestGenerateSkipsUnknownIDs(t *testing.T) {
	svc, extractor := synthesisFixture(t)

	calls := 0
	extractor.SynthesizeFunc = func(ctx context.Context, instructions, input string) (string, error) {
		calls++
		return "ok", nil
	}

	text, err := svc.Generate(context.Background(), SynthesisInput{PMIDs: "100, 999", GuidelineIDs: "nope"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 1, calls)

	// gar keine nutzbare Quelle: kein Modellaufruf, leeres Ergebnis
	text, err = svc.Generate(context.Background(), SynthesisInput{PMIDs: "999"})
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, 1, calls)
}

func TestPackStudyBlockFieldRendering(t *testing.T) {
	n := 50
	paper := &models.Paper{
		PMID:           "7",
		Title:          "Some trial",
		PatientN:       &n,
		PatientDetails: "- adults over 65\nno bullet line",
	}
	block := packStudyBlock(paper, 3, false)

	lines := strings.Split(block, "\n")
	assert.Equal(t, "STUDY 3: Some trial | PMID 7", lines[0])
	assert.Contains(t, block, "- N: 50")
	assert.Contains(t, block, "  - adults over 65")
	assert.Contains(t, block, "  - no bullet line")
}
