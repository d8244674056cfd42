package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"myevidence/models"
	"myevidence/providers"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CaptureService holt PubMed-Abstracts, lässt die PICO-Felder extrahieren
// und verwaltet die gespeicherten Papers.
type CaptureService struct {
	db        *gorm.DB
	source    providers.AbstractSource
	extractor providers.FieldExtractor
	log       *zap.Logger
}

func NewCaptureService(db *gorm.DB, source providers.AbstractSource, extractor providers.FieldExtractor, log *zap.Logger) *CaptureService {
	return &CaptureService{db: db, source: source, extractor: extractor, log: log}
}

// PaperCandidate sind die Fetch-Ergebnisse vor dem Speichern; die Felder
// sind editierbare Vorschläge, nichts davon ist persistiert.
type PaperCandidate struct {
	PMID         string                `json:"pmid"`
	Title        string                `json:"title"`
	Journal      string                `json:"journal"`
	Year         string                `json:"year"`
	Abstract     string                `json:"abstract"`
	Fields       providers.StudyFields `json:"fields"`
	AlreadySaved bool                  `json:"already_saved"`
}

// Fetch lädt den Abstract zu einer PMID und extrahiert die Studienfelder.
// Best-effort: eine fehlgeschlagene Feldextraktion lässt Felder leer, nur
// ein kompletter Gateway-Ausfall wird zum Fehler.
func (s *CaptureService) Fetch(ctx context.Context, pmid string) (*PaperCandidate, error) {
	pmid = strings.TrimSpace(pmid)
	if pmid == "" {
		return nil, fmt.Errorf("empty pmid")
	}

	var count int64
	if err := s.db.Model(&models.Paper{}).Where("pmid = ?", pmid).Count(&count).Error; err != nil {
		return nil, err
	}
	alreadySaved := count > 0

	record, err := s.source.FetchAbstract(ctx, pmid)
	if err != nil {
		if errors.Is(err, providers.ErrNotFound) {
			return nil, fmt.Errorf("pmid %s: %w", pmid, ErrNotFound)
		}
		return nil, fmt.Errorf("pubmed fetch: %w (%v)", ErrUpstreamFailure, err)
	}

	cand := &PaperCandidate{
		PMID:         record.PMID,
		Title:        record.Title,
		Journal:      record.Journal,
		Year:         record.Year,
		Abstract:     record.Abstract,
		AlreadySaved: alreadySaved,
	}

	fields, err := s.extractor.ExtractStudyFields(ctx, record.Title, record.Abstract)
	if err != nil {
		return nil, fmt.Errorf("field extraction: %w (%v)", ErrUpstreamFailure, err)
	}
	cand.Fields = *fields
	return cand, nil
}

// SaveInput ist der Speicher-Payload; die Felder kommen vom Fetch-Ergebnis,
// ggf. vom Nutzer nachbearbeitet.
type SaveInput struct {
	PMID                   string   `json:"pmid" binding:"required"`
	Title                  string   `json:"title"`
	Journal                string   `json:"journal"`
	Year                   string   `json:"year"`
	Abstract               string   `json:"abstract" binding:"required"`
	PatientN               *int     `json:"patient_n"`
	DesignTags             []string `json:"design_tags"`
	PatientDetails         string   `json:"patient_details"`
	InterventionComparison string   `json:"intervention_comparison"`
	Results                string   `json:"results"`
	AuthorsConclusions     string   `json:"authors_conclusions"`
	Specialty              string   `json:"specialty"`
}

// Save legt das Paper an. Insert-only: eine zweite PMID gibt ErrAlreadyExists.
func (s *CaptureService) Save(in SaveInput) (*models.Paper, error) {
	var count int64
	if err := s.db.Model(&models.Paper{}).Where("pmid = ?", in.PMID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("pmid %s: %w", in.PMID, ErrAlreadyExists)
	}

	var tags datatypes.JSON
	if len(in.DesignTags) > 0 {
		b, err := json.Marshal(in.DesignTags)
		if err != nil {
			return nil, err
		}
		tags = datatypes.JSON(b)
	}

	paper := models.Paper{
		PMID:                   in.PMID,
		Title:                  in.Title,
		Journal:                in.Journal,
		Year:                   in.Year,
		Abstract:               in.Abstract,
		PatientN:               in.PatientN,
		PatientDetails:         in.PatientDetails,
		InterventionComparison: in.InterventionComparison,
		Results:                in.Results,
		AuthorsConclusions:     in.AuthorsConclusions,
		DesignTags:             tags,
		Specialty:              in.Specialty,
		SavedAt:                time.Now(),
	}
	if err := s.db.Create(&paper).Error; err != nil {
		return nil, err
	}
	s.log.Info("Paper gespeichert", zap.String("pmid", paper.PMID))
	return &paper, nil
}

// Get liefert ein Paper per PMID.
func (s *CaptureService) Get(pmid string) (*models.Paper, error) {
	var paper models.Paper
	if err := s.db.First(&paper, "pmid = ?", pmid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("pmid %s: %w", pmid, ErrNotFound)
		}
		return nil, err
	}
	return &paper, nil
}

// Delete löscht ein Paper endgültig; ohne confirm-Flag passiert nichts.
func (s *CaptureService) Delete(pmid string, confirm bool) error {
	if !confirm {
		return ErrConfirmationRequired
	}
	res := s.db.Where("pmid = ?", pmid).Delete(&models.Paper{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("pmid %s: %w", pmid, ErrNotFound)
	}
	s.log.Info("Paper gelöscht", zap.String("pmid", pmid))
	return nil
}

// BrowseQuery sind die optionalen Filter für die Bibliotheksansicht.
type BrowseQuery struct {
	Specialty string `json:"specialty"`
	Journal   string `json:"journal"`
	Year      string `json:"year"`
	Search    string `json:"search"`
	Recent    bool   `json:"recent"`
	Limit     int    `json:"limit"`
}

// Browse listet Papers: Volltext-Tokensuche (AND über LIKE), optional nach
// Specialty/Journal/Jahr gefiltert. recent=true sortiert nach saved_at desc,
// sonst Specialty, Jahr absteigend, Titel.
func (s *CaptureService) Browse(q BrowseQuery) ([]models.Paper, error) {
	tx := s.db.Model(&models.Paper{})
	if q.Specialty != "" {
		tx = tx.Where("specialty LIKE ?", "%"+q.Specialty+"%")
	}
	if q.Journal != "" {
		tx = tx.Where("journal = ?", q.Journal)
	}
	if q.Year != "" {
		tx = tx.Where("year = ?", q.Year)
	}
	for _, token := range strings.Fields(q.Search) {
		like := "%" + strings.ToLower(token) + "%"
		tx = tx.Where(
			"LOWER(title) LIKE ? OR LOWER(abstract) LIKE ? OR LOWER(journal) LIKE ? OR LOWER(specialty) LIKE ? OR LOWER(authors_conclusions) LIKE ?",
			like, like, like, like, like)
	}
	if q.Recent {
		tx = tx.Order("saved_at desc")
	} else {
		tx = tx.Order("specialty asc").Order("year desc").Order("title asc")
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var papers []models.Paper
	if err := tx.Find(&papers).Error; err != nil {
		return nil, err
	}
	return papers, nil
}
