package models

import "time"

// Report is a saved, re-runnable dashboard report. APICode runs server-side in the sandbox, RenderCode in the browser.
type Report struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `gorm:"type:text;not null" json:"description"`
	Query       string    `gorm:"type:text;not null" json:"query"`
	APICode     string    `gorm:"type:text;not null" json:"apiCode"`
	RenderCode  string    `gorm:"type:text;not null" json:"renderCode"`
	Data        string    `gorm:"type:text;not null;default:'{}'" json:"data"`
	UserID      uint      `gorm:"index;not null" json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Executable reports whether both code artifacts are present.
func (r *Report) Executable() bool {
	return r.APICode != "" && r.RenderCode != ""
}
