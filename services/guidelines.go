package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"myevidence/models"
	"myevidence/providers"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Wie viel vom Textanfang an das Modell geht, um Metadaten zu raten.
const metaSnippetChars = 6000

// GuidelineService verwaltet den Lebenszyklus einer Leitlinie: Upload mit
// Texterkennung, Metadaten, Löschen samt Empfehlungen.
type GuidelineService struct {
	db        *gorm.DB
	layout    providers.LayoutExtractor
	extractor providers.FieldExtractor
	log       *zap.Logger
}

func NewGuidelineService(db *gorm.DB, layout providers.LayoutExtractor, extractor providers.FieldExtractor, log *zap.Logger) *GuidelineService {
	return &GuidelineService{db: db, layout: layout, extractor: extractor, log: log}
}

// SavePDF nimmt die PDF-Bytes an, dedupliziert über SHA-256 und extrahiert
// den Text via Azure DI. Bei bekanntem Hash kommt die existierende Zeile
// zurück (duplicate=true), die Bytes selbst werden nie gespeichert.
func (s *GuidelineService) SavePDF(ctx context.Context, filename string, pdf []byte) (*models.Guideline, bool, error) {
	if len(pdf) == 0 {
		return nil, false, fmt.Errorf("empty pdf")
	}

	sum := sha256.Sum256(pdf)
	hash := hex.EncodeToString(sum[:])

	var existing models.Guideline
	err := s.db.First(&existing, "sha256 = ?", hash).Error
	if err == nil {
		s.log.Info("PDF bereits bekannt, gebe existierende Leitlinie zurück",
			zap.String("guideline_id", existing.ID), zap.String("sha256", hash))
		return &existing, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	text, err := s.layout.ExtractPDFText(ctx, pdf)
	if err != nil {
		return nil, false, fmt.Errorf("pdf text extraction: %w (%v)", ErrUpstreamFailure, err)
	}

	guideline := models.Guideline{
		ID:            strings.ReplaceAll(uuid.NewString(), "-", ""),
		Filename:      filename,
		SHA256:        hash,
		Bytes:         int64(len(pdf)),
		ExtractedText: text,
		UploadedAt:    time.Now(),
	}
	if err := s.db.Create(&guideline).Error; err != nil {
		return nil, false, err
	}
	s.log.Info("Leitlinie gespeichert",
		zap.String("guideline_id", guideline.ID),
		zap.String("filename", filename),
		zap.Int64("bytes", guideline.Bytes))
	return &guideline, false, nil
}

// ExtractMetadata rät Name, Jahr und Fachgebiet aus dem Textanfang.
// Das Ergebnis sind editierbare Vorschläge, gespeichert wird erst über SaveMetadata.
func (s *GuidelineService) ExtractMetadata(ctx context.Context, id string) (*providers.GuidelineMeta, error) {
	guideline, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	snippet := guideline.ExtractedText
	if len(snippet) > metaSnippetChars {
		snippet = snippet[:metaSnippetChars]
	}
	meta, err := s.extractor.ExtractGuidelineMeta(ctx, guideline.Filename, snippet)
	if err != nil {
		return nil, fmt.Errorf("metadata extraction: %w (%v)", ErrUpstreamFailure, err)
	}
	// Schon gespeicherte Werte gewinnen gegen einen frischen Modell-Guess.
	if guideline.Name != "" {
		meta.Name = guideline.Name
	}
	if guideline.PubYear != "" {
		meta.PubYear = guideline.PubYear
	}
	if guideline.Specialty != "" {
		meta.Specialty = guideline.Specialty
	}
	return meta, nil
}

// SaveMetadata schreibt die bestätigten Metadaten. Idempotenter Upsert über
// die Guideline-ID; wiederholtes Speichern überschreibt die Felder einfach.
func (s *GuidelineService) SaveMetadata(id string, meta providers.GuidelineMeta) (*models.Guideline, error) {
	guideline, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		"name":           strings.TrimSpace(meta.Name),
		"pub_year":       strings.TrimSpace(meta.PubYear),
		"specialty":      strings.TrimSpace(meta.Specialty),
		"metadata_saved": true,
	}
	if err := s.db.Model(guideline).Updates(updates).Error; err != nil {
		return nil, err
	}
	return guideline, nil
}

// Get liefert die Leitlinie per ID.
func (s *GuidelineService) Get(id string) (*models.Guideline, error) {
	var guideline models.Guideline
	if err := s.db.First(&guideline, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("guideline %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &guideline, nil
}

// Delete entfernt die Leitlinie und alle ihre Empfehlungen in einer
// Transaktion; ohne confirm-Flag passiert nichts.
func (s *GuidelineService) Delete(id string, confirm bool) error {
	if !confirm {
		return ErrConfirmationRequired
	}
	var deleted int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("guideline_id = ?", id).Delete(&models.Recommendation{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Guideline{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return fmt.Errorf("guideline %s: %w", id, ErrNotFound)
	}
	s.log.Info("Leitlinie gelöscht", zap.String("guideline_id", id))
	return nil
}

// GuidelineQuery sind die optionalen Filter für die Leitlinienliste.
type GuidelineQuery struct {
	Specialty string `json:"specialty"`
	PubYear   string `json:"pub_year"`
	Search    string `json:"search"`
	Limit     int    `json:"limit"`
}

// Browse listet Leitlinien, Tokensuche über Name/Dateiname/Fachgebiet.
func (s *GuidelineService) Browse(q GuidelineQuery) ([]models.Guideline, error) {
	tx := s.db.Model(&models.Guideline{})
	if q.Specialty != "" {
		tx = tx.Where("specialty LIKE ?", "%"+q.Specialty+"%")
	}
	if q.PubYear != "" {
		tx = tx.Where("pub_year = ?", q.PubYear)
	}
	for _, token := range strings.Fields(q.Search) {
		like := "%" + strings.ToLower(token) + "%"
		tx = tx.Where("LOWER(name) LIKE ? OR LOWER(filename) LIKE ? OR LOWER(specialty) LIKE ?", like, like, like)
	}
	tx = tx.Order("specialty asc").Order("pub_year desc").Order("name asc")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var guidelines []models.Guideline
	if err := tx.Find(&guidelines).Error; err != nil {
		return nil, err
	}
	// Der extrahierte Text kann mehrere Megabyte groß sein, der gehört nicht
	// in Listenantworten.
	for i := range guidelines {
		guidelines[i].ExtractedText = ""
	}
	return guidelines, nil
}
