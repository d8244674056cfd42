package models

import "time"

// Status-Werte für den Review einer extrahierten Empfehlung.
const (
	RecStatusUnreviewed = "unreviewed"
	RecStatusRelevant   = "relevant"
	RecStatusIrrelevant = "irrelevant"
	RecStatusDeleted    = "deleted" // terminal
)

// Recommendation ist ein einzelner Empfehlungs-Kandidat aus einer Leitlinie.
// Ord hält die Original-Extraktionsreihenfolge für stabile Listings fest.
type Recommendation struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	GuidelineID string `json:"guideline_id" gorm:"index;size:64;not null"`
	Ord         int    `json:"ord" gorm:"not null"`

	Section string `json:"section,omitempty"`
	Text    string `json:"text" gorm:"type:text;not null"`

	// Grading-Angaben, sofern die Leitlinie sie explizit nennt
	Strength string `json:"strength,omitempty"`
	Evidence string `json:"evidence,omitempty"`

	Status     string `json:"status" gorm:"index;default:'unreviewed'"`
	EditedText string `json:"edited_text,omitempty" gorm:"type:text"`
}

// TableName gibt explizit den Tabellennamen an.
func (Recommendation) TableName() string {
	return "recommendations"
}
