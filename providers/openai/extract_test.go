package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTagList(t *testing.T) {
	tags := parseTagList("RCT, multicenter,  rct, , ICU.")
	assert.Equal(t, []string{"RCT", "multicenter", "ICU"}, tags)

	assert.Nil(t, parseTagList(""))
	assert.Nil(t, parseTagList("   "))
}

func TestNormalizeBullets(t *testing.T) {
	out := normalizeBullets("- first\n* second\n• third\nplain line\n\n- \n")
	assert.Equal(t, "- first\n- second\n- third\n- plain line", out)
	assert.Empty(t, normalizeBullets(""))
}

func TestStripDigits(t *testing.T) {
	assert.Equal(t,
		"Mortality was lower in the intervention group (% vs %).",
		stripDigits("Mortality was lower in the intervention group (12% vs 18%)."))
}

func TestParseNonnegInt(t *testing.T) {
	n, ok := parseNonnegInt(" 1250 ")
	require.True(t, ok)
	assert.Equal(t, 1250, n)

	n, ok = parseNonnegInt("n = 480 patients")
	require.True(t, ok)
	assert.Equal(t, 480, n)

	_, ok = parseNonnegInt("unknown")
	assert.False(t, ok)
}

func TestDecodeJSONObject(t *testing.T) {
	var parsed guidelineMetaResponse
	require.NoError(t, decodeJSONObject(`{"guideline_name":"X","pub_year":"2020"}`, &parsed))
	assert.Equal(t, "X", parsed.GuidelineName)

	// mit umgebendem Markdown-Rauschen
	parsed = guidelineMetaResponse{}
	raw := "Here you go:\n```json\n{\"guideline_name\":\"Y\",\"pub_year\":\"2021\"}\n```"
	require.NoError(t, decodeJSONObject(raw, &parsed))
	assert.Equal(t, "Y", parsed.GuidelineName)
	assert.Equal(t, "2021", parsed.PubYear)

	assert.Error(t, decodeJSONObject("no json here", &parsed))
}

func TestYearOrEmpty(t *testing.T) {
	assert.Equal(t, "2020", yearOrEmpty(" 2020 "))
	assert.Empty(t, yearOrEmpty("20"))
	assert.Empty(t, yearOrEmpty("around 2020"))
	assert.Empty(t, yearOrEmpty(""))
}
