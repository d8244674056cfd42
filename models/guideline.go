package models

import (
	"time"
)

// Guideline repräsentiert ein hochgeladenes Leitlinien-PDF.
// Das PDF selbst wird nie gespeichert, nur der via Azure DI extrahierte Text.
type Guideline struct {
	ID        string    `json:"guideline_id" gorm:"primaryKey;size:64"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Filename string `json:"filename" gorm:"not null"`
	SHA256   string `json:"sha256" gorm:"uniqueIndex;size:64;not null"` // Dedupe bei erneutem Upload
	Bytes    int64  `json:"bytes"`

	Name      string `json:"guideline_name,omitempty"`
	PubYear   string `json:"pub_year,omitempty" gorm:"index"`
	Specialty string `json:"specialty,omitempty" gorm:"index"`

	ExtractedText string `json:"extracted_text,omitempty" gorm:"type:text"`

	MetadataSaved              bool       `json:"metadata_saved" gorm:"default:false"`
	RecommendationsExtractedAt *time.Time `json:"recommendations_extracted_at,omitempty"`
	UploadedAt                 time.Time  `json:"uploaded_at" gorm:"index"`
}

// TableName gibt explizit den Tabellennamen an.
func (Guideline) TableName() string {
	return "guidelines"
}
