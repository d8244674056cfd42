package services

import (
	"context"
	"testing"

	"myevidence/models"
	"myevidence/providers"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Paper{},
		&models.Guideline{},
		&models.Recommendation{},
		&models.HiddenPmid{},
		&models.SearchLedgerEntry{},
		&models.EvidenceFolder{},
		&models.FolderItem{},
	))
	return db
}

// mockSource ist ein AbstractSource mit konfigurierbaren Antworten.
type mockSource struct {
	FetchFunc  func(ctx context.Context, pmid string) (*providers.AbstractRecord, error)
	SearchFunc func(ctx context.Context, q providers.SliceQuery) ([]providers.SearchResult, error)
}

func (m *mockSource) FetchAbstract(ctx context.Context, pmid string) (*providers.AbstractRecord, error) {
	return m.FetchFunc(ctx, pmid)
}

func (m *mockSource) SearchSlice(ctx context.Context, q providers.SliceQuery) ([]providers.SearchResult, error) {
	return m.SearchFunc(ctx, q)
}

// mockExtractor ist ein FieldExtractor mit konfigurierbaren Antworten.
type mockExtractor struct {
	StudyFieldsFunc     func(ctx context.Context, title, abstract string) (*providers.StudyFields, error)
	GuidelineMetaFunc   func(ctx context.Context, filename, snippet string) (*providers.GuidelineMeta, error)
	RecommendationsFunc func(ctx context.Context, elements []providers.Element) ([]providers.RecommendationCandidate, error)
	SynthesizeFunc      func(ctx context.Context, instructions, input string) (string, error)
}

func (m *mockExtractor) ExtractStudyFields(ctx context.Context, title, abstract string) (*providers.StudyFields, error) {
	if m.StudyFieldsFunc == nil {
		return &providers.StudyFields{}, nil
	}
	return m.StudyFieldsFunc(ctx, title, abstract)
}

func (m *mockExtractor) ExtractGuidelineMeta(ctx context.Context, filename, snippet string) (*providers.GuidelineMeta, error) {
	if m.GuidelineMetaFunc == nil {
		return &providers.GuidelineMeta{}, nil
	}
	return m.GuidelineMetaFunc(ctx, filename, snippet)
}

func (m *mockExtractor) ExtractRecommendations(ctx context.Context, elements []providers.Element) ([]providers.RecommendationCandidate, error) {
	if m.RecommendationsFunc == nil {
		return nil, nil
	}
	return m.RecommendationsFunc(ctx, elements)
}

func (m *mockExtractor) Synthesize(ctx context.Context, instructions, input string) (string, error) {
	if m.SynthesizeFunc == nil {
		return "", nil
	}
	return m.SynthesizeFunc(ctx, instructions, input)
}

// mockLayout ist ein LayoutExtractor, der immer denselben Text liefert.
type mockLayout struct {
	Text string
	Err  error
}

func (m *mockLayout) ExtractPDFText(ctx context.Context, pdf []byte) (string, error) {
	return m.Text, m.Err
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
