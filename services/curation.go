package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"myevidence/models"
	"myevidence/providers"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CurationService verwaltet den Review-Lebenszyklus der Leitlinien-Empfehlungen.
type CurationService struct {
	db        *gorm.DB
	extractor providers.FieldExtractor
	log       *zap.Logger
}

func NewCurationService(db *gorm.DB, extractor providers.FieldExtractor, log *zap.Logger) *CurationService {
	return &CurationService{db: db, extractor: extractor, log: log}
}

// normalizeRecoText ist der Duplikat-Schlüssel: lowercased, Whitespace kollabiert.
func normalizeRecoText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// orderCandidates stellt Erstvorkommen vor alle Wiederholungen, jeweils in
// stabiler Originalreihenfolge.
func orderCandidates(cands []providers.RecommendationCandidate) []providers.RecommendationCandidate {
	seen := map[string]bool{}
	firsts := make([]providers.RecommendationCandidate, 0, len(cands))
	var dupes []providers.RecommendationCandidate
	for _, c := range cands {
		key := normalizeRecoText(c.Text)
		if key == "" {
			continue
		}
		if seen[key] {
			dupes = append(dupes, c)
			continue
		}
		seen[key] = true
		firsts = append(firsts, c)
	}
	return append(firsts, dupes...)
}

// ExtractRecommendations lässt die Layout-Elemente der Leitlinie durch das
// Modell laufen und legt die Kandidaten als unreviewed-Zeilen an. Existieren
// schon Zeilen für die Leitlinie, passiert nichts (alreadyExtracted=true).
func (s *CurationService) ExtractRecommendations(ctx context.Context, guidelineID string) (int, bool, error) {
	var guideline models.Guideline
	if err := s.db.First(&guideline, "id = ?", guidelineID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, fmt.Errorf("guideline %s: %w", guidelineID, ErrNotFound)
		}
		return 0, false, err
	}

	var existing int64
	if err := s.db.Model(&models.Recommendation{}).Where("guideline_id = ?", guidelineID).Count(&existing).Error; err != nil {
		return 0, false, err
	}
	if existing > 0 {
		s.log.Info("Empfehlungen bereits extrahiert, überspringe",
			zap.String("guideline_id", guidelineID), zap.Int64("rows", existing))
		return 0, true, nil
	}

	elements := CandidateElements(SplitMarkdownElements(guideline.ExtractedText))
	cands, err := s.extractor.ExtractRecommendations(ctx, elements)
	if err != nil {
		return 0, false, fmt.Errorf("recommendation extraction: %w (%v)", ErrUpstreamFailure, err)
	}
	cands = orderCandidates(cands)

	now := time.Now()
	rows := make([]models.Recommendation, 0, len(cands))
	for i, c := range cands {
		rows = append(rows, models.Recommendation{
			GuidelineID: guidelineID,
			Ord:         i,
			Section:     c.Section,
			Text:        c.Text,
			Strength:    c.Strength,
			Evidence:    c.Evidence,
			Status:      models.RecStatusUnreviewed,
		})
	}

	// Alles oder nichts, sonst wäre der existing>0-Guard wertlos.
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Guideline{}).Where("id = ?", guidelineID).
			Update("recommendations_extracted_at", now).Error
	})
	if err != nil {
		return 0, false, err
	}

	s.log.Info("Empfehlungen extrahiert",
		zap.String("guideline_id", guidelineID), zap.Int("count", len(rows)))
	return len(rows), false, nil
}

// Keep markiert eine Empfehlung als relevant. editedText wird nur beim ersten
// Verlassen von unreviewed übernommen; danach ist der Text eingefroren.
func (s *CurationService) Keep(id uint, editedText string) (*models.Recommendation, error) {
	return s.review(id, models.RecStatusRelevant, editedText)
}

// Remove markiert eine Empfehlung als irrelevant (rückgängig machbar über Keep).
func (s *CurationService) Remove(id uint) (*models.Recommendation, error) {
	return s.review(id, models.RecStatusIrrelevant, "")
}

func (s *CurationService) review(id uint, target, editedText string) (*models.Recommendation, error) {
	var rec models.Recommendation
	if err := s.db.First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("recommendation %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	if rec.Status == models.RecStatusDeleted {
		return nil, fmt.Errorf("recommendation %d: %w", id, ErrReviewLocked)
	}

	updates := map[string]interface{}{"status": target}
	if rec.Status == models.RecStatusUnreviewed && strings.TrimSpace(editedText) != "" {
		updates["edited_text"] = strings.TrimSpace(editedText)
	}
	if err := s.db.Model(&rec).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete setzt den Endzustand deleted. Aus jedem Zustand erlaubt, nicht
// umkehrbar; auf einer schon gelöschten Empfehlung ein No-op.
func (s *CurationService) Delete(id uint) error {
	var rec models.Recommendation
	if err := s.db.First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("recommendation %d: %w", id, ErrNotFound)
		}
		return err
	}
	if rec.Status == models.RecStatusDeleted {
		return nil
	}
	return s.db.Model(&rec).Update("status", models.RecStatusDeleted).Error
}

// List liefert die Empfehlungen einer Leitlinie in Extraktionsreihenfolge.
// filter: unreviewed | relevant | irrelevant | all (gelöschte nie dabei).
func (s *CurationService) List(guidelineID, filter string) ([]models.Recommendation, error) {
	q := s.db.Where("guideline_id = ?", guidelineID).Order("ord asc")
	switch filter {
	case "", "all":
		q = q.Where("status <> ?", models.RecStatusDeleted)
	case models.RecStatusUnreviewed, models.RecStatusRelevant, models.RecStatusIrrelevant:
		q = q.Where("status = ?", filter)
	default:
		return nil, fmt.Errorf("unknown filter %q", filter)
	}
	var recs []models.Recommendation
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// DisplayText gibt den angezeigten Text: edited_text, falls beim ersten
// Review gesetzt, sonst der Originaltext.
func DisplayText(rec *models.Recommendation) string {
	if rec.EditedText != "" {
		return rec.EditedText
	}
	return rec.Text
}
