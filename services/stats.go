package services

import (
	"myevidence/models"

	"gorm.io/gorm"
)

// LibraryStats sind die Bestandszahlen für die Metrik-Gauges und /healthz.
type LibraryStats struct {
	Papers          int64            `json:"papers"`
	Guidelines      int64            `json:"guidelines"`
	HiddenPmids     int64            `json:"hidden_pmids"`
	ClearedSlices   int64            `json:"cleared_slices"`
	Folders         int64            `json:"folders"`
	Recommendations map[string]int64 `json:"recommendations"`
}

// CollectLibraryStats zählt die Bestände pro Entität und Review-Status.
func CollectLibraryStats(db *gorm.DB) (*LibraryStats, error) {
	stats := &LibraryStats{Recommendations: map[string]int64{}}

	counts := []struct {
		model interface{}
		dest  *int64
	}{
		{&models.Paper{}, &stats.Papers},
		{&models.Guideline{}, &stats.Guidelines},
		{&models.HiddenPmid{}, &stats.HiddenPmids},
		{&models.SearchLedgerEntry{}, &stats.ClearedSlices},
		{&models.EvidenceFolder{}, &stats.Folders},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dest).Error; err != nil {
			return nil, err
		}
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	if err := db.Model(&models.Recommendation{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats.Recommendations[r.Status] = r.Count
	}
	return stats, nil
}
