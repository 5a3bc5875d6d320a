// Package reports authors reports with an LLM and runs their stored code.
package reports

import (
	"context"
	"encoding/json"
	"strings"

	"gorm.io/gorm"

	"github.com/pysugar/report-nexus/internal/apierr"
	"github.com/pysugar/report-nexus/internal/db"
	"github.com/pysugar/report-nexus/internal/db/models"
	"github.com/pysugar/report-nexus/internal/jsx"
	"github.com/pysugar/report-nexus/internal/llm"
	"github.com/pysugar/report-nexus/internal/logging"
	"github.com/pysugar/report-nexus/internal/util"
)

// NeedsMoreInfo is returned instead of a report when the model asks for clarification.
type NeedsMoreInfo struct {
	NeedsMoreInfo bool     `json:"needsMoreInfo"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	RequiredInfo  []string `json:"requiredInfo"`
}

// envelope is the JSON object the model must emit.
type envelope struct {
	NeedsMoreInfo bool     `json:"needsMoreInfo"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	APICode       string   `json:"apiCode"`
	RenderCode    string   `json:"renderCode"`
	RequiredInfo  []string `json:"requiredInfo"`
}

func (e *envelope) complete() bool {
	return e.Name != "" && e.Description != "" && e.APICode != "" && e.RenderCode != ""
}

// Service generates, modifies and explains reports.
type Service struct {
	db  *gorm.DB
	gen llm.Generator
}

// NewService creates a Service.
func NewService(db *gorm.DB, gen llm.Generator) *Service {
	return &Service{db: db, gen: gen}
}

type operation struct {
	name       string
	parseFail  string
	incomplete string
	failed     string
}

var (
	opGenerate = operation{
		name:       "generate",
		parseFail:  "Failed to parse AI response",
		incomplete: "AI response was incomplete or malformed",
		failed:     "Failed to generate report using AI",
	}
	opModify = operation{
		name:       "modify",
		parseFail:  "Failed to parse AI modification response",
		incomplete: "AI modification response was incomplete or malformed",
		failed:     "Failed to modify report using AI",
	}
	opAnswer = operation{
		name:   "answer",
		failed: "Failed to get answer using AI",
	}
)

// Generate asks the model for a new report and stores it for userID.
// Exactly one of the returned report and NeedsMoreInfo is non-nil on success.
func (s *Service) Generate(ctx context.Context, userID uint, query string) (*models.Report, *NeedsMoreInfo, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil, apierr.New(apierr.Validation, "Query is required")
	}
	if _, err := db.FindUserByID(ctx, s.db, userID); err != nil {
		if db.IsNotFound(err) {
			return nil, nil, apierr.New(apierr.NotFound, "User not found")
		}
		return nil, nil, apierr.Wrap(apierr.Internal, "Failed to load user", err)
	}

	env, more, err := s.author(ctx, opGenerate, llm.Request{
		Operation: opGenerate.name,
		System:    generateInstructions,
		Prompt:    generatePrompt(query),
		JSON:      true,
	})
	if err != nil || more != nil {
		return nil, more, err
	}

	report := &models.Report{
		Name:        env.Name,
		Description: env.Description,
		Query:       query,
		APICode:     env.APICode,
		RenderCode:  env.RenderCode,
		UserID:      userID,
		Data:        "{}",
	}
	if err := db.CreateReport(ctx, s.db, report); err != nil {
		return nil, nil, apierr.Wrap(apierr.Internal, "Failed to save report", err)
	}
	logging.FromContext(ctx).Info().Uint("report_id", report.ID).Uint("user_id", userID).Msg("report generated")
	return report, nil, nil
}

// Modify rewrites an owned report's code according to request.
func (s *Service) Modify(ctx context.Context, userID, reportID uint, request string) (*models.Report, *NeedsMoreInfo, error) {
	if strings.TrimSpace(request) == "" {
		return nil, nil, apierr.New(apierr.Validation, "Modification request text is required")
	}
	report, err := s.Owned(ctx, userID, reportID)
	if err != nil {
		return nil, nil, err
	}

	env, more, err := s.author(ctx, opModify, llm.Request{
		Operation: opModify.name,
		System:    modifyInstructions,
		Prompt:    modifyPrompt(report, request),
		JSON:      true,
	})
	if err != nil || more != nil {
		return nil, more, err
	}

	report.Name = env.Name
	report.Description = env.Description
	report.APICode = env.APICode
	report.RenderCode = env.RenderCode
	if err := db.UpdateReportCode(ctx, s.db, report); err != nil {
		return nil, nil, apierr.Wrap(apierr.Internal, "Failed to update report", err)
	}
	logging.FromContext(ctx).Info().Uint("report_id", report.ID).Msg("report modified")
	return report, nil, nil
}

// Answer explains an owned report in plain text. Nothing is stored.
func (s *Service) Answer(ctx context.Context, userID, reportID uint, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", apierr.New(apierr.Validation, "Question text is required")
	}
	report, err := s.Owned(ctx, userID, reportID)
	if err != nil {
		return "", err
	}

	answer, err := s.gen.Generate(ctx, llm.Request{
		Operation: opAnswer.name,
		System:    answerInstructions,
		Prompt:    answerPrompt(report, question),
	})
	if err != nil {
		return "", classifyLLMError(ctx, opAnswer, err)
	}
	logging.FromContext(ctx).Debug().Str("answer", util.TruncateLog(answer, util.DefaultLogMaxLen)).Msg("raw model answer")
	return answer, nil
}

// Get returns a report by id.
func (s *Service) Get(ctx context.Context, id uint) (*models.Report, error) {
	r, err := db.FindReport(ctx, s.db, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apierr.New(apierr.NotFound, "Report not found")
		}
		return nil, apierr.Wrap(apierr.Internal, "Failed to fetch report", err)
	}
	return r, nil
}

// ListForUser returns userID's reports, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uint) ([]models.Report, error) {
	reports, err := db.ListReports(ctx, s.db, userID)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "Failed to fetch reports", err)
	}
	return reports, nil
}

// Delete removes a report owned by userID.
func (s *Service) Delete(ctx context.Context, userID, id uint) error {
	deleted, err := db.DeleteReport(ctx, s.db, userID, id)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "Failed to delete report", err)
	}
	if !deleted {
		return apierr.New(apierr.NotFound, "Report not found or unauthorized")
	}
	return nil
}

// Owned returns a report that belongs to userID.
func (s *Service) Owned(ctx context.Context, userID, reportID uint) (*models.Report, error) {
	report, err := s.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.UserID != userID {
		return nil, apierr.New(apierr.Forbidden, "Forbidden: You do not own this report")
	}
	return report, nil
}

// author runs a JSON-mode request and validates the envelope. The render code of a
// complete envelope is already compiled to plain JavaScript.
func (s *Service) author(ctx context.Context, op operation, req llm.Request) (*envelope, *NeedsMoreInfo, error) {
	log := logging.FromContext(ctx)

	text, err := s.gen.Generate(ctx, req)
	if err != nil {
		return nil, nil, classifyLLMError(ctx, op, err)
	}
	log.Debug().Str("op", op.name).Str("response", util.TruncateLog(text, util.DefaultLogMaxLen)).Msg("raw model response")

	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		log.Error().Err(err).Str("op", op.name).Str("response", util.TruncateLog(text, util.DefaultLogMaxLen)).Msg("model returned invalid JSON")
		return nil, nil, apierr.Wrap(apierr.MalformedAIResponse, op.parseFail, err)
	}
	if env.NeedsMoreInfo {
		return nil, &NeedsMoreInfo{
			NeedsMoreInfo: true,
			Name:          env.Name,
			Description:   env.Description,
			RequiredInfo:  env.RequiredInfo,
		}, nil
	}
	if !env.complete() {
		log.Error().Str("op", op.name).Str("response", util.TruncateLog(text, util.DefaultLogMaxLen)).Msg("model response missing required fields")
		return nil, nil, apierr.New(apierr.IncompleteAIResponse, op.incomplete)
	}

	compiled, err := jsx.TransformOrKeep(env.RenderCode)
	if err != nil {
		log.Warn().Err(err).Str("op", op.name).Msg("render code kept untransformed")
	}
	env.RenderCode = compiled
	return &env, nil, nil
}

func classifyLLMError(ctx context.Context, op operation, err error) error {
	logging.FromContext(ctx).Error().Err(err).Str("op", op.name).Msg("model call failed")
	if llm.IsBlocked(err) {
		return apierr.Wrap(apierr.AIBlocked, "AI request blocked due to safety settings.", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return apierr.Wrap(apierr.AIFailure, op.failed, err)
}
