package models

import "time"

// HiddenPmid markiert eine PMID als "Don't show again" für alle künftigen Suchen.
type HiddenPmid struct {
	PMID      string    `json:"pmid" gorm:"column:pmid;primaryKey;size:32"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (HiddenPmid) TableName() string {
	return "hidden_pmids"
}
