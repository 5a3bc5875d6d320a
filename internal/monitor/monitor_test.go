package monitor

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/report-nexus/internal/db/models"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.AutoMigrate(&models.ReportRun{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestRecordAndQueryRuns(t *testing.T) {
	db := newTestDB(t)
	m := NewRunMonitor(db)
	ctx := context.Background()

	m.Record(ctx, models.ReportRun{ReportID: 1, Status: 200, Timestamp: 1000, Rows: 3})
	m.Record(ctx, models.ReportRun{ReportID: 1, Status: 500, Timestamp: 2000, Error: strings.Repeat("x", MaxErrorSize+10)})
	m.Record(ctx, models.ReportRun{ReportID: 2, Status: 200, Timestamp: 3000})

	runs := m.Runs(ctx, 1, 10)
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].Timestamp != 2000 {
		t.Fatalf("expected newest first, got %+v", runs[0])
	}
	if !strings.HasSuffix(runs[0].Error, "...[truncated]") {
		t.Fatalf("long error not truncated")
	}
	if runs[0].ID == "" {
		t.Fatalf("run id not assigned")
	}

	stats := m.ReportStats(ctx, 1)
	if stats.TotalRuns != 2 || stats.SuccessCount != 1 || stats.ErrorCount != 1 {
		t.Fatalf("report stats = %+v", stats)
	}
	if got := m.Stats(); got.TotalRuns != 3 || got.ErrorCount != 1 {
		t.Fatalf("process stats = %+v", got)
	}
}

func TestStatsLoadedFromDB(t *testing.T) {
	db := newTestDB(t)
	db.Create(&models.ReportRun{ID: "a", ReportID: 1, Status: 200})
	db.Create(&models.ReportRun{ID: "b", ReportID: 1, Status: 404})

	m := NewRunMonitor(db)
	if got := m.Stats(); got.TotalRuns != 2 || got.SuccessCount != 1 || got.ErrorCount != 1 {
		t.Fatalf("stats = %+v", got)
	}
}
