package models

import (
	"time"

	"gorm.io/datatypes"
)

// Paper repräsentiert einen gespeicherten PubMed-Abstract samt extrahierter PICO-Felder.
// Nach dem Speichern unveränderlich; Korrekturen laufen über Löschen + erneutes Fetchen.
type Paper struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	PMID    string `json:"pmid" gorm:"column:pmid;uniqueIndex;not null"`
	Title   string `json:"title"`
	Journal string `json:"journal,omitempty" gorm:"index"`
	Year    string `json:"year,omitempty" gorm:"index"`

	Abstract string `json:"abstract" gorm:"type:text;not null"`

	// Strukturierte Extraktion (editierbare Defaults, ggf. unvollständig)
	PatientN               *int           `json:"patient_n,omitempty"`
	PatientDetails         string         `json:"patient_details,omitempty" gorm:"type:text"`
	InterventionComparison string         `json:"intervention_comparison,omitempty" gorm:"type:text"`
	Results                string         `json:"results,omitempty" gorm:"type:text"`
	AuthorsConclusions     string         `json:"authors_conclusions,omitempty" gorm:"type:text"`
	DesignTags             datatypes.JSON `json:"design_tags,omitempty" gorm:"type:jsonb"`
	Specialty              string         `json:"specialty,omitempty" gorm:"index"`

	SavedAt time.Time `json:"saved_at" gorm:"index"`
}

// TableName gibt explizit den Tabellennamen an.
func (Paper) TableName() string {
	return "papers"
}
