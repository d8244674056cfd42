package models

import "time"

// EvidenceFolder ist eine benannte Gruppierung von Papers und Leitlinien.
// Reine Referenzen, kein Besitz: Löschen eines Folders lässt die Items unberührt.
type EvidenceFolder struct {
	ID        string    `json:"folder_id" gorm:"primaryKey;size:64"`
	Name      string    `json:"name" gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (EvidenceFolder) TableName() string {
	return "evidence_folders"
}

// FolderItem ist eine einzelne Referenz in einem Folder: entweder PMID oder GuidelineID.
type FolderItem struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	FolderID    string `json:"folder_id" gorm:"index:idx_folder_items_uq,unique;size:64;not null"`
	PMID        string `json:"pmid,omitempty" gorm:"column:pmid;index:idx_folder_items_uq,unique;size:32;default:''"`
	GuidelineID string `json:"guideline_id,omitempty" gorm:"index:idx_folder_items_uq,unique;size:64;default:''"`
}

// TableName gibt explizit den Tabellennamen an.
func (FolderItem) TableName() string {
	return "folder_items"
}
