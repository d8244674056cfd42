package services

import (
	"context"
	"fmt"
	"time"

	"myevidence/models"
	"myevidence/providers"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerService hält fest, welche Such-Slices komplett abgearbeitet sind,
// und filtert Suchergebnisse gegen gespeicherte und versteckte PMIDs.
type LedgerService struct {
	db     *gorm.DB
	source providers.AbstractSource
	log    *zap.Logger
}

func NewLedgerService(db *gorm.DB, source providers.AbstractSource, log *zap.Logger) *LedgerService {
	return &LedgerService{db: db, source: source, log: log}
}

// SliceSearchResponse ist das Ergebnis einer Slice-Suche nach dem Filtern.
type SliceSearchResponse struct {
	Results     []providers.SearchResult `json:"results"`
	TotalFound  int                      `json:"total_found"`
	SavedCount  int                      `json:"saved_count"`
	HiddenCount int                      `json:"hidden_count"`
	Cleared     bool                     `json:"cleared"`
}

// FilterResults entfernt gespeicherte und versteckte PMIDs aus den Treffern.
// Reine Mengenoperation, die Reihenfolge der Kandidaten bleibt unverändert.
func (s *LedgerService) FilterResults(results []providers.SearchResult) (filtered []providers.SearchResult, saved, hidden int, err error) {
	if len(results) == 0 {
		return nil, 0, 0, nil
	}

	pmids := make([]string, 0, len(results))
	for _, r := range results {
		pmids = append(pmids, r.PMID)
	}

	var savedPmids []string
	if err := s.db.Model(&models.Paper{}).Where("pmid IN ?", pmids).Pluck("pmid", &savedPmids).Error; err != nil {
		return nil, 0, 0, err
	}
	var hiddenPmids []string
	if err := s.db.Model(&models.HiddenPmid{}).Where("pmid IN ?", pmids).Pluck("pmid", &hiddenPmids).Error; err != nil {
		return nil, 0, 0, err
	}

	excluded := make(map[string]bool, len(savedPmids)+len(hiddenPmids))
	for _, p := range savedPmids {
		excluded[p] = true
	}
	for _, p := range hiddenPmids {
		excluded[p] = true
	}

	for _, r := range results {
		if !excluded[r.PMID] {
			filtered = append(filtered, r)
		}
	}
	return filtered, len(savedPmids), len(hiddenPmids), nil
}

// Hide versteckt eine PMID dauerhaft aus allen künftigen Suchergebnissen.
// Wiederholtes Verstecken ist ein No-op.
func (s *LedgerService) Hide(pmid string) error {
	if pmid == "" {
		return fmt.Errorf("empty pmid")
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.HiddenPmid{PMID: pmid}).Error
}

// ClearSlice markiert einen Slice als abgearbeitet. Upsert über den
// 5-Spalten-Schlüssel, mehrfaches Markieren erzeugt keine zweite Zeile.
func (s *LedgerService) ClearSlice(q providers.SliceQuery) error {
	entry := models.SearchLedgerEntry{
		Year:      q.Year,
		Month:     q.Month,
		Specialty: q.Specialty,
		Journal:   q.Journal,
		StudyType: q.StudyType,
		ClearedAt: time.Now(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "year"}, {Name: "month"}, {Name: "specialty"},
			{Name: "journal"}, {Name: "study_type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"cleared_at"}),
	}).Create(&entry).Error
}

// IsCleared prüft, ob der Slice schon als abgearbeitet markiert ist.
func (s *LedgerService) IsCleared(q providers.SliceQuery) (bool, error) {
	var count int64
	err := s.db.Model(&models.SearchLedgerEntry{}).
		Where("year = ? AND month = ? AND specialty = ? AND journal = ? AND study_type = ?",
			q.Year, q.Month, q.Specialty, q.Journal, q.StudyType).
		Count(&count).Error
	return count > 0, err
}

// History liefert alle abgearbeiteten Slices, neueste zuerst.
func (s *LedgerService) History() ([]models.SearchLedgerEntry, error) {
	var entries []models.SearchLedgerEntry
	err := s.db.Order("cleared_at desc").Find(&entries).Error
	return entries, err
}

// SearchSlice fragt PubMed ab, filtert gegen das Ledger und markiert den
// Slice als abgearbeitet, sobald kein ungesichteter Treffer übrig ist
// (auch im leeren Fall).
func (s *LedgerService) SearchSlice(ctx context.Context, q providers.SliceQuery) (*SliceSearchResponse, error) {
	results, err := s.source.SearchSlice(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("pubmed slice search: %w (%v)", ErrUpstreamFailure, err)
	}

	filtered, saved, hidden, err := s.FilterResults(results)
	if err != nil {
		return nil, err
	}

	resp := &SliceSearchResponse{
		Results:     filtered,
		TotalFound:  len(results),
		SavedCount:  saved,
		HiddenCount: hidden,
	}

	if len(filtered) == 0 {
		if err := s.ClearSlice(q); err != nil {
			return nil, err
		}
		resp.Cleared = true
		s.log.Info("Slice abgearbeitet",
			zap.Int("year", q.Year), zap.Int("month", q.Month),
			zap.String("specialty", q.Specialty), zap.String("journal", q.Journal),
			zap.String("study_type", q.StudyType))
		return resp, nil
	}

	resp.Cleared, err = s.IsCleared(q)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
