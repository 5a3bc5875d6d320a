package handlers

import (
	"net/http"
	"strconv"

	"github.com/pysugar/report-nexus/internal/apierr"
	"github.com/pysugar/report-nexus/internal/monitor"
	"github.com/pysugar/report-nexus/internal/reports"
)

const invalidReportID = "Invalid report ID"

type createReportRequest struct {
	Query  string     `json:"query" validate:"required"`
	UserID OptionalID `json:"userId"`
}

type modifyReportRequest struct {
	RequestText string     `json:"requestText" validate:"required"`
	UserID      OptionalID `json:"userId"`
}

type askReportRequest struct {
	QuestionText string     `json:"questionText" validate:"required"`
	UserID       OptionalID `json:"userId"`
}

type deleteReportRequest struct {
	UserID OptionalID `json:"userId"`
}

// CreateReportHandler generates a report from a natural-language query.
// POST /api/ai/reports
func CreateReportHandler(svc *reports.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createReportRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		caller, err := actingUser(r, req.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		report, more, err := svc.Generate(r.Context(), caller.ID, req.Query)
		switch {
		case err != nil:
			writeError(w, r, err)
		case more != nil:
			writeJSON(w, http.StatusBadRequest, more)
		default:
			writeJSON(w, http.StatusCreated, report)
		}
	}
}

// ListReportsHandler returns a user's reports, newest first.
// GET /api/ai/reports/user/{userId}
func ListReportsHandler(svc *reports.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathID(r, "userId", "Invalid user ID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		caller, err := callerOf(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if caller.ID != userID {
			writeError(w, r, apierr.New(apierr.Forbidden, "Forbidden: You can only list your own reports"))
			return
		}

		list, err := svc.ListForUser(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GetReportHandler returns one of the caller's reports.
// GET /api/ai/reports/{id}
func GetReportHandler(svc *reports.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id", invalidReportID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		caller, err := callerOf(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		report, err := svc.Owned(r.Context(), caller.ID, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// RunReportHandler executes a report's data code and returns its rows with the render code.
// GET /api/ai/reports/{id}/run
func RunReportHandler(runner *reports.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id", invalidReportID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		caller, err := callerOf(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		res, err := runner.Run(r.Context(), id, reports.Caller{ID: caller.ID, Email: caller.Email})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ModifyReportHandler rewrites a report from a change request.
// PUT /api/ai/reports/{id}/modify
func ModifyReportHandler(svc *reports.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id", invalidReportID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req modifyReportRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		caller, err := actingUser(r, req.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		report, more, err := svc.Modify(r.Context(), caller.ID, id, req.RequestText)
		switch {
		case err != nil:
			writeError(w, r, err)
		case more != nil:
			writeJSON(w, http.StatusBadRequest, more)
		default:
			writeJSON(w, http.StatusOK, report)
		}
	}
}

// AskReportHandler answers a question about a report.
// POST /api/ai/reports/{id}/ask
func AskReportHandler(svc *reports.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id", invalidReportID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req askReportRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		caller, err := actingUser(r, req.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		answer, err := svc.Answer(r.Context(), caller.ID, id, req.QuestionText)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
	}
}

// DeleteReportHandler removes one of the caller's reports.
// DELETE /api/ai/reports/{id}
func DeleteReportHandler(svc *reports.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id", invalidReportID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req deleteReportRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		caller, err := actingUser(r, req.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := svc.Delete(r.Context(), caller.ID, id); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Report deleted successfully"})
	}
}

// ReportRunsHandler returns the recent run history of one of the caller's reports.
// GET /api/ai/reports/{id}/runs?limit=N
func ReportRunsHandler(svc *reports.Service, mon *monitor.RunMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id", invalidReportID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		caller, err := callerOf(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if _, err := svc.Owned(r.Context(), caller.ID, id); err != nil {
			writeError(w, r, err)
			return
		}

		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= monitor.MaxMemoryRuns {
				limit = n
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"runs":  mon.Runs(r.Context(), id, limit),
			"stats": mon.ReportStats(r.Context(), id),
		})
	}
}
