package services

import (
	"context"
	"testing"

	"myevidence/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func abstractRecord(pmid string) *providers.AbstractRecord {
	return &providers.AbstractRecord{
		PMID:     pmid,
		Title:    "A trial of drug A",
		Journal:  "Lancet",
		Year:     "2024",
		Abstract: "BACKGROUND: ...\n\nRESULTS: ...",
	}
}

func TestFetchReturnsCandidateWithFields(t *testing.T) {
	db := newTestDB(t)
	n := 120
	source := &mockSource{
		FetchFunc: func(ctx context.Context, pmid string) (*providers.AbstractRecord, error) {
			return abstractRecord(pmid), nil
		},
	}
	extractor := &mockExtractor{
		StudyFieldsFunc: func(ctx context.Context, title, abstract string) (*providers.StudyFields, error) {
			return &providers.StudyFields{
				PatientN:   &n,
				DesignTags: []string{"RCT", "multicenter"},
				Results:    "- lower mortality",
			}, nil
		},
	}
	svc := NewCaptureService(db, source, extractor, testLogger())

	cand, err := svc.Fetch(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, "12345", cand.PMID)
	assert.Equal(t, "A trial of drug A", cand.Title)
	assert.False(t, cand.AlreadySaved)
	require.NotNil(t, cand.Fields.PatientN)
	assert.Equal(t, 120, *cand.Fields.PatientN)
	assert.Equal(t, []string{"RCT", "multicenter"}, cand.Fields.DesignTags)
}

func TestFetchUnknownPmid(t *testing.T) {
	db := newTestDB(t)
	source := &mockSource{
		FetchFunc: func(ctx context.Context, pmid string) (*providers.AbstractRecord, error) {
			return nil, providers.ErrNotFound
		},
	}
	svc := NewCaptureService(db, source, &mockExtractor{}, testLogger())

	_, err := svc.Fetch(context.Background(), "0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchFlagsAlreadySaved(t *testing.T) {
	db := newTestDB(t)
	source := &mockSource{
		FetchFunc: func(ctx context.Context, pmid string) (*providers.AbstractRecord, error) {
			return abstractRecord(pmid), nil
		},
	}
	svc := NewCaptureService(db, source, &mockExtractor{}, testLogger())

	_, err := svc.Save(SaveInput{PMID: "12345", Title: "t", Abstract: "a"})
	require.NoError(t, err)

	cand, err := svc.Fetch(context.Background(), "12345")
	require.NoError(t, err)
	assert.True(t, cand.AlreadySaved)
}

func TestSaveRejectsDuplicatePmid(t *testing.T) {
	db := newTestDB(t)
	svc := NewCaptureService(db, &mockSource{}, &mockExtractor{}, testLogger())

	in := SaveInput{
		PMID:       "12345",
		Title:      "A trial",
		Abstract:   "text",
		DesignTags: []string{"RCT"},
		Specialty:  "Cardiology",
	}
	paper, err := svc.Save(in)
	require.NoError(t, err)
	assert.NotZero(t, paper.ID)
	assert.NotZero(t, paper.SavedAt)

	_, err = svc.Save(in)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestDeleteRequiresConfirm(t *testing.T) {
	db := newTestDB(t)
	svc := NewCaptureService(db, &mockSource{}, &mockExtractor{}, testLogger())

	_, err := svc.Save(SaveInput{PMID: "12345", Title: "t", Abstract: "a"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete("12345", false), ErrConfirmationRequired)
	_, err = svc.Get("12345")
	require.NoError(t, err)

	require.NoError(t, svc.Delete("12345", true))
	_, err = svc.Get("12345")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, svc.Delete("12345", true), ErrNotFound)
}

func TestBrowseFiltersAndSearch(t *testing.T) {
	db := newTestDB(t)
	svc := NewCaptureService(db, &mockSource{}, &mockExtractor{}, testLogger())

	seeds := []SaveInput{
		{PMID: "1", Title: "Aspirin in cardiology", Abstract: "platelets", Specialty: "Cardiology", Year: "2023"},
		{PMID: "2", Title: "Statins revisited", Abstract: "ldl lowering", Specialty: "Cardiology", Year: "2024"},
		{PMID: "3", Title: "Insulin pumps", Abstract: "glucose", Specialty: "Endocrinology", Year: "2024"},
	}
	for _, s := range seeds {
		_, err := svc.Save(s)
		require.NoError(t, err)
	}

	cardio, err := svc.Browse(BrowseQuery{Specialty: "Cardiology"})
	require.NoError(t, err)
	require.Len(t, cardio, 2)
	// Jahr absteigend innerhalb der Specialty
	assert.Equal(t, "2", cardio[0].PMID)
	assert.Equal(t, "1", cardio[1].PMID)

	found, err := svc.Browse(BrowseQuery{Search: "ldl statins"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "2", found[0].PMID)

	none, err := svc.Browse(BrowseQuery{Search: "ldl insulin"})
	require.NoError(t, err)
	assert.Empty(t, none)
}
