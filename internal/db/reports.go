package db

import (
	"context"
	"time"

	"github.com/pysugar/report-nexus/internal/db/models"
	"gorm.io/gorm"
)

// CreateReport inserts r, defaulting Data to an empty JSON object.
func CreateReport(ctx context.Context, db *gorm.DB, r *models.Report) error {
	if r.Data == "" {
		r.Data = "{}"
	}
	return db.WithContext(ctx).Create(r).Error
}

// FindReport returns gorm.ErrRecordNotFound when absent.
func FindReport(ctx context.Context, db *gorm.DB, id uint) (*models.Report, error) {
	var r models.Report
	if err := db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListReports returns the user's reports, newest first.
func ListReports(ctx context.Context, db *gorm.DB, userID uint) ([]models.Report, error) {
	reports := make([]models.Report, 0)
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&reports).Error
	return reports, err
}

// UpdateReportCode replaces the generated fields of r and bumps UpdatedAt.
func UpdateReportCode(ctx context.Context, db *gorm.DB, r *models.Report) error {
	r.UpdatedAt = time.Now()
	return db.WithContext(ctx).Model(&models.Report{ID: r.ID}).Updates(map[string]any{
		"name":        r.Name,
		"description": r.Description,
		"api_code":    r.APICode,
		"render_code": r.RenderCode,
		"updated_at":  r.UpdatedAt,
	}).Error
}

// DeleteReport removes the report and its run history only when userID owns it. It reports whether a row was removed.
func DeleteReport(ctx context.Context, db *gorm.DB, userID, id uint) (bool, error) {
	deleted := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Report{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return tx.Where("report_id = ?", id).Delete(&models.ReportRun{}).Error
	})
	return deleted, err
}
