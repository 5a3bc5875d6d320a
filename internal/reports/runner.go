package reports

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/pysugar/report-nexus/internal/apierr"
	"github.com/pysugar/report-nexus/internal/auth/oauth"
	"github.com/pysugar/report-nexus/internal/auth/token"
	"github.com/pysugar/report-nexus/internal/db"
	"github.com/pysugar/report-nexus/internal/db/models"
	"github.com/pysugar/report-nexus/internal/logging"
	"github.com/pysugar/report-nexus/internal/metrics"
	"github.com/pysugar/report-nexus/internal/monitor"
	"github.com/pysugar/report-nexus/internal/sandbox"
)

// Credentials is the token manager surface the runner depends on.
type Credentials interface {
	GetConnection(ctx context.Context, userID uint, provider string) (*models.Account, error)
	EnsureFresh(ctx context.Context, acc *models.Account) (token.Fresh, error)
	ResolveTenant(ctx context.Context, acc *models.Account, accessToken string) (string, error)
}

// Caller identifies who asked for a run.
type Caller struct {
	ID    uint
	Email string
}

// RunResult is the body returned for a successful run.
type RunResult struct {
	ReportID    uint           `json:"reportId"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Data        []any          `json:"data"`
	Metadata    map[string]any `json:"metadata"`
	RenderCode  string         `json:"renderCode"`
}

// ExecutionDetails accompanies a failed execution.
type ExecutionDetails struct {
	ReportID uint   `json:"reportId"`
	Stack    string `json:"stack,omitempty"`
}

// Runner executes a report's apiCode against the caller's Xero connection.
type Runner struct {
	db      *gorm.DB
	creds   Credentials
	exec    sandbox.Executor
	monitor *monitor.RunMonitor
}

// NewRunner creates a Runner. mon may be nil.
func NewRunner(db *gorm.DB, creds Credentials, exec sandbox.Executor, mon *monitor.RunMonitor) *Runner {
	return &Runner{db: db, creds: creds, exec: exec, monitor: mon}
}

// Run loads, authorizes and executes a report.
func (r *Runner) Run(ctx context.Context, reportID uint, caller Caller) (*RunResult, error) {
	start := time.Now()
	rec := models.ReportRun{ReportID: reportID, UserID: caller.ID, RequestID: logging.GetRequestID(ctx)}

	res, err := r.run(ctx, reportID, caller, &rec)

	rec.Duration = time.Since(start).Milliseconds()
	rec.Status = http.StatusOK
	outcome := "ok"
	if err != nil {
		rec.Status, _ = apierr.ToBody(err)
		rec.Error = err.Error()
		outcome = "error"
		switch {
		case apierr.Is(err, apierr.SandboxTimeout):
			rec.TimedOut = true
			outcome = "timeout"
		case rec.Status < http.StatusInternalServerError:
			outcome = "rejected"
		}
	} else {
		rec.Rows = len(res.Data)
	}
	metrics.ReportRuns.WithLabelValues(outcome).Inc()

	// Runs that never reached the report are not part of its history.
	if r.monitor != nil && rec.Status != http.StatusNotFound && rec.Status != http.StatusForbidden {
		r.monitor.Record(ctx, rec)
	}
	return res, err
}

func (r *Runner) run(ctx context.Context, reportID uint, caller Caller, rec *models.ReportRun) (*RunResult, error) {
	log := logging.FromContext(ctx)

	report, err := db.FindReport(ctx, r.db, reportID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apierr.New(apierr.NotFound, "Report not found")
		}
		return nil, apierr.Wrap(apierr.Internal, "Failed to fetch report", err)
	}
	if report.UserID != caller.ID {
		return nil, apierr.New(apierr.Forbidden, "You do not have permission to access this report")
	}

	acc, err := r.creds.GetConnection(ctx, caller.ID, oauth.ProviderXero)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "Failed to load Xero connection", err)
	}
	if acc == nil {
		log.Warn().Uint("user_id", caller.ID).Msg("no Xero connection")
		return nil, apierr.New(apierr.CredentialMissing, "No Xero connection found. Please connect your Xero account first.")
	}
	log.Info().Uint("account_id", acc.ID).Time("expires_at", time.Unix(acc.ExpiresAt, 0)).Msg("found Xero account")

	fresh, err := r.creds.EnsureFresh(ctx, acc)
	if err != nil {
		return nil, err
	}
	rec.Refreshed = fresh.Refreshed

	tenantID, err := r.creds.ResolveTenant(ctx, acc, fresh.AccessToken)
	if err != nil {
		return nil, err
	}

	log.Info().Uint("report_id", report.ID).Str("name", report.Name).Msg("executing report")
	out, err := r.exec.Execute(ctx, report.APICode, sandbox.Context{
		Auth:     sandbox.Auth{Token: fresh.AccessToken},
		TenantID: tenantID,
		UserInfo: sandbox.UserInfo{ID: caller.ID, Email: caller.Email},
	})
	if err != nil {
		var se *sandbox.Error
		if !errors.As(err, &se) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, apierr.Wrap(apierr.Internal, "Error executing report: sandbox unavailable", err)
		}
		log.Error().Str("error", se.Message).Str("stack", se.Stack).Msg("report execution failed")
		kind := apierr.SandboxExecution
		if se.Timeout {
			kind = apierr.SandboxTimeout
		}
		return nil, apierr.Wrap(kind, "Error executing report: "+se.Message, se).
			WithDetails(ExecutionDetails{ReportID: report.ID, Stack: se.Stack})
	}

	metadata := out.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	data := out.Data
	if data == nil {
		data = []any{}
	}
	log.Info().Int("rows", len(data)).Msg("report executed")
	return &RunResult{
		ReportID:    report.ID,
		Name:        report.Name,
		Description: report.Description,
		Data:        data,
		Metadata:    metadata,
		RenderCode:  report.RenderCode,
	}, nil
}
