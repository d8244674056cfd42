package services

import (
	"context"
	"testing"

	"myevidence/models"
	"myevidence/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guidelineMarkdown = `# Management of Condition X

## Recommendations

- Patients with condition X should receive drug A as first-line therapy (Class I, Level A).
- Drug B should not be used in patients with renal impairment.

Background text that is long enough but contains no directive language about the condition at all.
`

func newCurationFixture(t *testing.T, cands []providers.RecommendationCandidate) (*CurationService, *models.Guideline) {
	db := newTestDB(t)
	gsvc := NewGuidelineService(db, &mockLayout{Text: guidelineMarkdown}, &mockExtractor{}, testLogger())
	g, _, err := gsvc.SavePDF(context.Background(), "guideline.pdf", []byte("pdf-bytes"))
	require.NoError(t, err)

	extractor := &mockExtractor{
		RecommendationsFunc: func(ctx context.Context, elements []providers.Element) ([]providers.RecommendationCandidate, error) {
			return cands, nil
		},
	}
	return NewCurationService(db, extractor, testLogger()), g
}

func TestExtractRecommendationsCreatesUnreviewedRows(t *testing.T) {
	svc, g := newCurationFixture(t, []providers.RecommendationCandidate{
		{Section: "Recommendations", Text: "Use drug A first-line.", Strength: "Class I", Evidence: "Level A"},
		{Section: "Recommendations", Text: "Avoid drug B in renal impairment."},
	})

	count, already, err := svc.ExtractRecommendations(context.Background(), g.ID)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, 2, count)

	recs, err := svc.List(g.ID, "all")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, models.RecStatusUnreviewed, recs[0].Status)
	assert.Equal(t, "Use drug A first-line.", recs[0].Text)
	assert.Equal(t, 0, recs[0].Ord)
	assert.Equal(t, 1, recs[1].Ord)

	var guideline models.Guideline
	require.NoError(t, svc.db.First(&guideline, "id = ?", g.ID).Error)
	assert.NotNil(t, guideline.RecommendationsExtractedAt)
}

func TestExtractRecommendationsIsGuardedAgainstRerun(t *testing.T) {
	svc, g := newCurationFixture(t, []providers.RecommendationCandidate{
		{Text: "Use drug A first-line."},
	})

	_, _, err := svc.ExtractRecommendations(context.Background(), g.ID)
	require.NoError(t, err)

	count, already, err := svc.ExtractRecommendations(context.Background(), g.ID)
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, 0, count)

	recs, err := svc.List(g.ID, "all")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestExtractRecommendationsUnknownGuideline(t *testing.T) {
	svc, _ := newCurationFixture(t, nil)
	_, _, err := svc.ExtractRecommendations(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateCandidatesMoveToTail(t *testing.T) {
	svc, g := newCurationFixture(t, []providers.RecommendationCandidate{
		{Text: "Use drug A first-line."},
		{Text: "use   DRUG a first-line."}, // Duplikat nach Normalisierung
		{Text: "Avoid drug B."},
		{Text: "Use drug A first-line."},
	})

	count, _, err := svc.ExtractRecommendations(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	recs, err := svc.List(g.ID, "all")
	require.NoError(t, err)
	require.Len(t, recs, 4)
	// Erstvorkommen zuerst, Duplikate hinten in stabiler Reihenfolge
	assert.Equal(t, "Use drug A first-line.", recs[0].Text)
	assert.Equal(t, "Avoid drug B.", recs[1].Text)
	assert.Equal(t, "use   DRUG a first-line.", recs[2].Text)
	assert.Equal(t, "Use drug A first-line.", recs[3].Text)
}

func reviewFixture(t *testing.T) (*CurationService, uint, string) {
	svc, g := newCurationFixture(t, []providers.RecommendationCandidate{
		{Text: "Use drug A first-line."},
	})
	_, _, err := svc.ExtractRecommendations(context.Background(), g.ID)
	require.NoError(t, err)
	recs, err := svc.List(g.ID, "all")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return svc, recs[0].ID, g.ID
}

func TestKeepAcceptsEditOnlyWhenLeavingUnreviewed(t *testing.T) {
	svc, id, _ := reviewFixture(t)

	rec, err := svc.Keep(id, "Use drug A (edited).")
	require.NoError(t, err)
	assert.Equal(t, models.RecStatusRelevant, rec.Status)
	assert.Equal(t, "Use drug A (edited).", rec.EditedText)
	assert.Equal(t, "Use drug A (edited).", DisplayText(rec))

	// Einmal irrelevant, dann wieder relevant mit neuem Text: der erste
	// Edit bleibt stehen.
	_, err = svc.Remove(id)
	require.NoError(t, err)
	rec, err = svc.Keep(id, "A completely different text.")
	require.NoError(t, err)
	assert.Equal(t, models.RecStatusRelevant, rec.Status)

	var stored models.Recommendation
	require.NoError(t, svc.db.First(&stored, id).Error)
	assert.Equal(t, "Use drug A (edited).", stored.EditedText)
	assert.Equal(t, "Use drug A first-line.", stored.Text)
}

func TestReviewToggleIsReversible(t *testing.T) {
	svc, id, gid := reviewFixture(t)

	_, err := svc.Remove(id)
	require.NoError(t, err)
	irrelevant, err := svc.List(gid, models.RecStatusIrrelevant)
	require.NoError(t, err)
	assert.Len(t, irrelevant, 1)

	_, err = svc.Keep(id, "")
	require.NoError(t, err)
	relevant, err := svc.List(gid, models.RecStatusRelevant)
	require.NoError(t, err)
	assert.Len(t, relevant, 1)
}

func TestDeleteIsTerminal(t *testing.T) {
	svc, id, gid := reviewFixture(t)

	require.NoError(t, svc.Delete(id))

	// gelöschte tauchen in keiner Liste mehr auf
	all, err := svc.List(gid, "all")
	require.NoError(t, err)
	assert.Empty(t, all)

	// Keep/Remove sind gesperrt
	_, err = svc.Keep(id, "nope")
	assert.ErrorIs(t, err, ErrReviewLocked)
	_, err = svc.Remove(id)
	assert.ErrorIs(t, err, ErrReviewLocked)

	// erneutes Delete ist ein No-op
	assert.NoError(t, svc.Delete(id))
}

func TestReviewUnknownRecommendation(t *testing.T) {
	svc, _, _ := reviewFixture(t)
	_, err := svc.Keep(99999, "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(99999), ErrNotFound)
}

func TestListRejectsUnknownFilter(t *testing.T) {
	svc, _, gid := reviewFixture(t)
	_, err := svc.List(gid, "bogus")
	assert.Error(t, err)
}
