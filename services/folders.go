package services

import (
	"errors"
	"fmt"
	"strings"

	"myevidence/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FolderService verwaltet Evidence-Folder als reine Gruppierung.
// Items sind Referenzen (PMID oder Guideline-ID); ein Folder besitzt nichts.
type FolderService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewFolderService(db *gorm.DB, log *zap.Logger) *FolderService {
	return &FolderService{db: db, log: log}
}

// CreateOrGet legt einen Folder mit dem Namen an oder gibt den vorhandenen zurück.
func (s *FolderService) CreateOrGet(name string) (*models.EvidenceFolder, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, fmt.Errorf("empty folder name")
	}

	var existing models.EvidenceFolder
	err := s.db.First(&existing, "name = ?", name).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	folder := models.EvidenceFolder{
		ID:   strings.ReplaceAll(uuid.NewString(), "-", ""),
		Name: name,
	}
	if err := s.db.Create(&folder).Error; err != nil {
		return nil, false, err
	}
	return &folder, true, nil
}

// Rename benennt einen Folder um; der neue Name muss frei sein.
func (s *FolderService) Rename(id, name string) (*models.EvidenceFolder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("empty folder name")
	}

	var clash int64
	if err := s.db.Model(&models.EvidenceFolder{}).Where("name = ? AND id <> ?", name, id).Count(&clash).Error; err != nil {
		return nil, err
	}
	if clash > 0 {
		return nil, fmt.Errorf("folder name %q: %w", name, ErrAlreadyExists)
	}

	var folder models.EvidenceFolder
	if err := s.db.First(&folder, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("folder %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	if err := s.db.Model(&folder).Update("name", name).Error; err != nil {
		return nil, err
	}
	return &folder, nil
}

// Delete löscht den Folder samt Item-Referenzen; Papers und Leitlinien
// bleiben unberührt. Ohne confirm-Flag passiert nichts.
func (s *FolderService) Delete(id string, confirm bool) error {
	if !confirm {
		return ErrConfirmationRequired
	}
	var deleted int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("folder_id = ?", id).Delete(&models.FolderItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.EvidenceFolder{})
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
		return fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	return nil
}

// FolderSummary ist ein Folder samt Item-Anzahl für Listenansichten.
type FolderSummary struct {
	models.EvidenceFolder
	ItemCount int64 `json:"item_count"`
}

// List gibt alle Folder mit Item-Anzahl, alphabetisch.
func (s *FolderService) List() ([]FolderSummary, error) {
	var folders []models.EvidenceFolder
	if err := s.db.Order("name asc").Find(&folders).Error; err != nil {
		return nil, err
	}
	out := make([]FolderSummary, 0, len(folders))
	for _, f := range folders {
		var count int64
		if err := s.db.Model(&models.FolderItem{}).Where("folder_id = ?", f.ID).Count(&count).Error; err != nil {
			return nil, err
		}
		out = append(out, FolderSummary{EvidenceFolder: f, ItemCount: count})
	}
	return out, nil
}

// AddItems hängt PMIDs und Guideline-IDs an den Folder. Schon vorhandene
// Referenzen werden still übersprungen; zurück kommt die Zahl der neuen.
func (s *FolderService) AddItems(id string, pmids, guidelineIDs []string) (int, error) {
	if _, err := s.get(id); err != nil {
		return 0, err
	}

	added := 0
	for _, pmid := range pmids {
		pmid = strings.TrimSpace(pmid)
		if pmid == "" {
			continue
		}
		res := s.db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.FolderItem{FolderID: id, PMID: pmid})
		if res.Error != nil {
			return added, res.Error
		}
		added += int(res.RowsAffected)
	}
	for _, gid := range guidelineIDs {
		gid = strings.TrimSpace(gid)
		if gid == "" {
			continue
		}
		res := s.db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.FolderItem{FolderID: id, GuidelineID: gid})
		if res.Error != nil {
			return added, res.Error
		}
		added += int(res.RowsAffected)
	}
	return added, nil
}

// RemoveItems entfernt Referenzen aus dem Folder; zurück kommt die Zahl
// der tatsächlich entfernten.
func (s *FolderService) RemoveItems(id string, pmids, guidelineIDs []string) (int, error) {
	if _, err := s.get(id); err != nil {
		return 0, err
	}

	removed := int64(0)
	if len(pmids) > 0 {
		res := s.db.Where("folder_id = ? AND pmid IN ?", id, pmids).Delete(&models.FolderItem{})
		if res.Error != nil {
			return int(removed), res.Error
		}
		removed += res.RowsAffected
	}
	if len(guidelineIDs) > 0 {
		res := s.db.Where("folder_id = ? AND guideline_id IN ?", id, guidelineIDs).Delete(&models.FolderItem{})
		if res.Error != nil {
			return int(removed), res.Error
		}
		removed += res.RowsAffected
	}
	return int(removed), nil
}

// Items liefert die PMIDs und Guideline-IDs eines Folders in Einfüge-Reihenfolge.
func (s *FolderService) Items(id string) (pmids, guidelineIDs []string, err error) {
	if _, err := s.get(id); err != nil {
		return nil, nil, err
	}
	var items []models.FolderItem
	if err := s.db.Where("folder_id = ?", id).Order("id asc").Find(&items).Error; err != nil {
		return nil, nil, err
	}
	for _, it := range items {
		if it.PMID != "" {
			pmids = append(pmids, it.PMID)
		}
		if it.GuidelineID != "" {
			guidelineIDs = append(guidelineIDs, it.GuidelineID)
		}
	}
	return pmids, guidelineIDs, nil
}

func (s *FolderService) get(id string) (*models.EvidenceFolder, error) {
	var folder models.EvidenceFolder
	if err := s.db.First(&folder, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("folder %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &folder, nil
}
