package services

import (
	"context"
	"testing"
	"time"

	"myevidence/models"
	"myevidence/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sliceQuery() providers.SliceQuery {
	return providers.SliceQuery{Year: 2025, Month: 3, Specialty: "Cardiology", Journal: "Lancet", StudyType: "Randomized Controlled Trial"}
}

func TestFilterResultsPreservesOrder(t *testing.T) {
	db := newTestDB(t)
	svc := NewLedgerService(db, &mockSource{}, testLogger())

	require.NoError(t, db.Create(&models.Paper{PMID: "2", Title: "saved", Abstract: "a", SavedAt: time.Now()}).Error)
	require.NoError(t, svc.Hide("4"))

	in := []providers.SearchResult{
		{PMID: "1"}, {PMID: "2"}, {PMID: "3"}, {PMID: "4"}, {PMID: "5"},
	}
	filtered, saved, hidden, err := svc.FilterResults(in)
	require.NoError(t, err)
	assert.Equal(t, 1, saved)
	assert.Equal(t, 1, hidden)
	require.Len(t, filtered, 3)
	assert.Equal(t, "1", filtered[0].PMID)
	assert.Equal(t, "3", filtered[1].PMID)
	assert.Equal(t, "5", filtered[2].PMID)
}

func TestFilterResultsEmptyInput(t *testing.T) {
	db := newTestDB(t)
	svc := NewLedgerService(db, &mockSource{}, testLogger())

	filtered, saved, hidden, err := svc.FilterResults(nil)
	require.NoError(t, err)
	assert.Empty(t, filtered)
	assert.Zero(t, saved)
	assert.Zero(t, hidden)
}

func TestHideIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewLedgerService(db, &mockSource{}, testLogger())

	require.NoError(t, svc.Hide("12345"))
	require.NoError(t, svc.Hide("12345"))

	var count int64
	require.NoError(t, db.Model(&models.HiddenPmid{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestClearSliceIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewLedgerService(db, &mockSource{}, testLogger())
	q := sliceQuery()

	cleared, err := svc.IsCleared(q)
	require.NoError(t, err)
	assert.False(t, cleared)

	require.NoError(t, svc.ClearSlice(q))
	require.NoError(t, svc.ClearSlice(q))

	var count int64
	require.NoError(t, db.Model(&models.SearchLedgerEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	cleared, err = svc.IsCleared(q)
	require.NoError(t, err)
	assert.True(t, cleared)

	// anderer Slice bleibt unberührt
	other := q
	other.Month = 4
	cleared, err = svc.IsCleared(other)
	require.NoError(t, err)
	assert.False(t, cleared)
}

func TestSearchSliceClearsVacuousSlice(t *testing.T) {
	db := newTestDB(t)
	source := &mockSource{
		SearchFunc: func(ctx context.Context, q providers.SliceQuery) ([]providers.SearchResult, error) {
			return nil, nil
		},
	}
	svc := NewLedgerService(db, source, testLogger())

	resp, err := svc.SearchSlice(context.Background(), sliceQuery())
	require.NoError(t, err)
	assert.True(t, resp.Cleared)
	assert.Zero(t, resp.TotalFound)
	assert.Empty(t, resp.Results)

	cleared, err := svc.IsCleared(sliceQuery())
	require.NoError(t, err)
	assert.True(t, cleared)
}

func TestSearchSliceClearsWhenAllResultsTriaged(t *testing.T) {
	db := newTestDB(t)
	source := &mockSource{
		SearchFunc: func(ctx context.Context, q providers.SliceQuery) ([]providers.SearchResult, error) {
			return []providers.SearchResult{{PMID: "10"}, {PMID: "11"}}, nil
		},
	}
	svc := NewLedgerService(db, source, testLogger())

	require.NoError(t, db.Create(&models.Paper{PMID: "10", Title: "t", Abstract: "a", SavedAt: time.Now()}).Error)
	require.NoError(t, svc.Hide("11"))

	resp, err := svc.SearchSlice(context.Background(), sliceQuery())
	require.NoError(t, err)
	assert.True(t, resp.Cleared)
	assert.Equal(t, 2, resp.TotalFound)
	assert.Equal(t, 1, resp.SavedCount)
	assert.Equal(t, 1, resp.HiddenCount)
	assert.Empty(t, resp.Results)
}

func TestSearchSliceLeavesUntriagedOpen(t *testing.T) {
	db := newTestDB(t)
	source := &mockSource{
		SearchFunc: func(ctx context.Context, q providers.SliceQuery) ([]providers.SearchResult, error) {
			return []providers.SearchResult{{PMID: "10", Title: "untriaged"}}, nil
		},
	}
	svc := NewLedgerService(db, source, testLogger())

	resp, err := svc.SearchSlice(context.Background(), sliceQuery())
	require.NoError(t, err)
	assert.False(t, resp.Cleared)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "10", resp.Results[0].PMID)

	cleared, err := svc.IsCleared(sliceQuery())
	require.NoError(t, err)
	assert.False(t, cleared)
}

func TestHistoryNewestFirst(t *testing.T) {
	db := newTestDB(t)
	svc := NewLedgerService(db, &mockSource{}, testLogger())

	older := sliceQuery()
	require.NoError(t, svc.ClearSlice(older))
	require.NoError(t, db.Model(&models.SearchLedgerEntry{}).
		Where("month = ?", older.Month).
		Update("cleared_at", time.Now().Add(-time.Hour)).Error)

	newer := sliceQuery()
	newer.Month = 4
	require.NoError(t, svc.ClearSlice(newer))

	entries, err := svc.History()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 4, entries[0].Month)
	assert.Equal(t, 3, entries[1].Month)
}
