// Package monitor keeps the execution history of reports.
package monitor

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/report-nexus/internal/db/models"
	"gorm.io/gorm"
)

const (
	// MaxErrorSize limits stored error text to 4KB
	MaxErrorSize = 4 * 1024
	// MaxMemoryRuns limits the in-memory cache of recent runs
	MaxMemoryRuns = 100
)

// RunMonitor records report executions and keeps aggregate counters.
type RunMonitor struct {
	db *gorm.DB

	recentRuns []models.ReportRun
	runsMu     sync.RWMutex

	totalRuns    atomic.Int64
	successCount atomic.Int64
	errorCount   atomic.Int64
}

// NewRunMonitor creates a RunMonitor and loads counters from the database.
func NewRunMonitor(db *gorm.DB) *RunMonitor {
	m := &RunMonitor{
		db:         db,
		recentRuns: make([]models.ReportRun, 0, MaxMemoryRuns),
	}
	m.loadStatsFromDB()
	return m
}

// Record stores one run. Failures to persist are logged, never returned.
func (m *RunMonitor) Record(ctx context.Context, run models.ReportRun) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Timestamp == 0 {
		run.Timestamp = time.Now().UnixMilli()
	}
	if len(run.Error) > MaxErrorSize {
		run.Error = run.Error[:MaxErrorSize] + "...[truncated]"
	}

	m.totalRuns.Add(1)
	if run.Status >= 200 && run.Status < 400 {
		m.successCount.Add(1)
	} else {
		m.errorCount.Add(1)
	}

	m.runsMu.Lock()
	m.recentRuns = append([]models.ReportRun{run}, m.recentRuns...)
	if len(m.recentRuns) > MaxMemoryRuns {
		m.recentRuns = m.recentRuns[:MaxMemoryRuns]
	}
	m.runsMu.Unlock()

	// A cancelled request still gets its run recorded.
	if err := m.db.WithContext(context.WithoutCancel(ctx)).Create(&run).Error; err != nil {
		log.Printf("[Monitor] Failed to save run: %v", err)
	}
}

// Runs returns the most recent runs of a report, newest first.
func (m *RunMonitor) Runs(ctx context.Context, reportID uint, limit int) []models.ReportRun {
	if limit <= 0 || limit > MaxMemoryRuns {
		limit = MaxMemoryRuns
	}

	runs := make([]models.ReportRun, 0)
	err := m.db.WithContext(ctx).
		Where("report_id = ?", reportID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&runs).Error
	if err == nil {
		return runs
	}

	log.Printf("[Monitor] Failed to get runs from DB: %v", err)
	m.runsMu.RLock()
	defer m.runsMu.RUnlock()
	for _, r := range m.recentRuns {
		if r.ReportID == reportID && len(runs) < limit {
			runs = append(runs, r)
		}
	}
	return runs
}

// ReportStats aggregates the stored runs of one report.
func (m *RunMonitor) ReportStats(ctx context.Context, reportID uint) models.RunStats {
	var stats models.RunStats
	q := m.db.WithContext(ctx).Model(&models.ReportRun{}).Where("report_id = ?", reportID)
	q.Session(&gorm.Session{}).Count(&stats.TotalRuns)
	q.Session(&gorm.Session{}).Where("status >= 200 AND status < 400").Count(&stats.SuccessCount)
	stats.ErrorCount = stats.TotalRuns - stats.SuccessCount
	return stats
}

// Stats returns process-wide counters.
func (m *RunMonitor) Stats() models.RunStats {
	return models.RunStats{
		TotalRuns:    m.totalRuns.Load(),
		SuccessCount: m.successCount.Load(),
		ErrorCount:   m.errorCount.Load(),
	}
}

func (m *RunMonitor) loadStatsFromDB() {
	var total, success int64
	m.db.Model(&models.ReportRun{}).Count(&total)
	m.db.Model(&models.ReportRun{}).Where("status >= 200 AND status < 400").Count(&success)

	m.totalRuns.Store(total)
	m.successCount.Store(success)
	m.errorCount.Store(total - success)

	log.Printf("[Monitor] Loaded run stats: total=%d, success=%d, errors=%d", total, success, total-success)
}
