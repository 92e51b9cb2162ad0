package services

import (
	"fmt"
	"time"

	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/types"
	"gorm.io/gorm"
)

// RunStats groups ingestion runs of one status
type RunStats struct {
	Count     int64 `json:"count"`
	TotalSize int64 `json:"total_size"`
}

// MonthCount is the number of cases created in one month (YYYY-MM)
type MonthCount struct {
	Month string `json:"month"`
	Count int64  `json:"count"`
}

// Dashboard is the registry-wide overview
type Dashboard struct {
	TotalCases      int64                 `json:"total_cases"`
	CasesByStatus   map[string]int64      `json:"cases_by_status"`
	CasesByPriority map[string]int64      `json:"cases_by_priority"`
	TotalRecords    int64                 `json:"total_records"`
	TotalFileSize   int64                 `json:"total_file_size"`
	TotalRuns       int64                 `json:"total_runs"`
	RunsByStatus    map[string]RunStats   `json:"runs_by_status"`
	MonthlyCases    []MonthCount          `json:"monthly_cases"`
	TopCases        []models.Case         `json:"top_cases"`
	RecentRuns      []models.IngestionRun `json:"recent_runs"`
	GeneratedAt     time.Time             `json:"generated_at"`
}

const (
	dashboardTopCases   = 5
	dashboardRecentRuns = 10
	dashboardMonths     = 6
)

// DashboardStats aggregates cases and ingestion runs across the registry
func DashboardStats(db *gorm.DB) (*Dashboard, error) {
	db = silent(db)
	now := time.Now().UTC()
	d := &Dashboard{
		CasesByStatus:   map[string]int64{},
		CasesByPriority: map[string]int64{},
		RunsByStatus:    map[string]RunStats{},
		MonthlyCases:    []MonthCount{},
		GeneratedAt:     now,
	}

	var groups []struct {
		Grp   string
		N     int64
		Bytes int64
	}
	if err := db.Model(&models.Case{}).Select("status AS grp, COUNT(*) AS n").Group("status").Scan(&groups).Error; err != nil {
		return nil, statsError(err)
	}
	for _, g := range groups {
		d.CasesByStatus[g.Grp] = g.N
		d.TotalCases += g.N
	}

	groups = nil
	if err := db.Model(&models.Case{}).Select("priority AS grp, COUNT(*) AS n").Group("priority").Scan(&groups).Error; err != nil {
		return nil, statsError(err)
	}
	for _, g := range groups {
		d.CasesByPriority[g.Grp] = g.N
	}

	var totals struct {
		Records int64
		Bytes   int64
	}
	if err := db.Model(&models.Case{}).
		Select("COALESCE(SUM(record_count), 0) AS records, COALESCE(SUM(total_file_size), 0) AS bytes").
		Scan(&totals).Error; err != nil {
		return nil, statsError(err)
	}
	d.TotalRecords, d.TotalFileSize = totals.Records, totals.Bytes

	groups = nil
	if err := db.Model(&models.IngestionRun{}).
		Select("status AS grp, COUNT(*) AS n, COALESCE(SUM(file_size), 0) AS bytes").
		Group("status").Scan(&groups).Error; err != nil {
		return nil, statsError(err)
	}
	for _, g := range groups {
		d.RunsByStatus[g.Grp] = RunStats{Count: g.N, TotalSize: g.Bytes}
		d.TotalRuns += g.N
	}

	// cases created per month, oldest first
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(dashboardMonths - 1), 0)
	var created []time.Time
	if err := db.Model(&models.Case{}).Where("created_at >= ?", start).Pluck("created_at", &created).Error; err != nil {
		return nil, statsError(err)
	}
	months := map[string]int64{}
	for _, ts := range created {
		months[ts.UTC().Format("2006-01")]++
	}
	for m := start; !m.After(now); m = m.AddDate(0, 1, 0) {
		key := m.Format("2006-01")
		d.MonthlyCases = append(d.MonthlyCases, MonthCount{Month: key, Count: months[key]})
	}

	if err := db.Order("record_count DESC, id ASC").Limit(dashboardTopCases).Find(&d.TopCases).Error; err != nil {
		return nil, statsError(err)
	}
	if err := db.Order("id DESC").Limit(dashboardRecentRuns).Find(&d.RecentRuns).Error; err != nil {
		return nil, statsError(err)
	}
	return d, nil
}

func statsError(err error) error {
	return fmt.Errorf("%w: dashboard: %v", types.ErrStorageFailure, err)
}
