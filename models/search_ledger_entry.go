package models

import "time"

// SearchLedgerEntry hält fest, dass ein Such-Slice (Jahr × Monat × Specialty ×
// Journal × Studientyp) vollständig triagiert wurde. Der zusammengesetzte
// Natural Key verhindert Duplikate beim erneuten Abschließen.
type SearchLedgerEntry struct {
	ID uint `json:"id" gorm:"primaryKey"`

	Year      int    `json:"year" gorm:"index:idx_search_ledger_slice,unique;not null"`
	Month     int    `json:"month" gorm:"index:idx_search_ledger_slice,unique;not null"`
	Specialty string `json:"specialty" gorm:"index:idx_search_ledger_slice,unique;size:128;default:''"`
	Journal   string `json:"journal" gorm:"index:idx_search_ledger_slice,unique;size:128;default:''"`
	StudyType string `json:"study_type" gorm:"index:idx_search_ledger_slice,unique;size:128;default:''"`

	ClearedAt time.Time `json:"cleared_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (SearchLedgerEntry) TableName() string {
	return "search_ledger_entries"
}
