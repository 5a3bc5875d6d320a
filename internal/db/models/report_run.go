package models

// ReportRun records one execution of a report's apiCode.
type ReportRun struct {
	ID        string `gorm:"primaryKey" json:"id"`
	ReportID  uint   `gorm:"index" json:"reportId"`
	UserID    uint   `gorm:"index" json:"userId"`
	Timestamp int64  `gorm:"index" json:"timestamp"` // unix millis
	Status    int    `json:"status"`
	Duration  int64  `json:"duration"` // milliseconds
	Rows      int    `json:"rows"`
	Refreshed bool   `json:"refreshed"`
	TimedOut  bool   `json:"timedOut,omitempty"`
	Error     string `gorm:"type:text" json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// RunStats holds aggregated statistics for a report's runs.
type RunStats struct {
	TotalRuns    int64 `json:"total_runs"`
	SuccessCount int64 `json:"success_count"`
	ErrorCount   int64 `json:"error_count"`
}
