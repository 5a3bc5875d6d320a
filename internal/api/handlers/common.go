// Package handlers implements the JSON HTTP API.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pysugar/report-nexus/internal/apierr"
	"github.com/pysugar/report-nexus/internal/auth/session"
	"github.com/pysugar/report-nexus/internal/logging"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError is the single place errors become responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := apierr.ToBody(err)
	log := logging.FromContext(r.Context())
	evt := log.Warn()
	if status >= http.StatusInternalServerError {
		evt = log.Error()
	}
	evt.Err(err).Int("status", status).Str("code", string(body.Code)).Msg("request failed")
	writeJSON(w, status, body)
}

// decodeBody reads a JSON body into dst and validates its struct tags.
// An empty body decodes as {} so that validation reports the missing fields.
func decodeBody(r *http.Request, dst any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apierr.Wrap(apierr.Validation, "Invalid request body", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apierr.Wrap(apierr.Validation, "Invalid request body", err)
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apierr.Wrap(apierr.Validation, "Invalid request body", err)
	}
	fe := fieldErrs[0]
	name := fieldLabel(fe.Field())
	switch fe.Tag() {
	case "required":
		return apierr.Wrap(apierr.Validation, name+" is required", err)
	case "email":
		return apierr.Wrap(apierr.Validation, name+" must be a valid email address", err)
	case "min":
		return apierr.Wrap(apierr.Validation, fmt.Sprintf("%s must be at least %s characters", name, fe.Param()), err)
	case "max":
		return apierr.Wrap(apierr.Validation, fmt.Sprintf("%s must be at most %s characters", name, fe.Param()), err)
	}
	return apierr.Wrap(apierr.Validation, name+" is invalid", err)
}

var fieldLabels = map[string]string{
	"Email":        "Email",
	"Password":     "Password",
	"Query":        "Query",
	"RequestText":  "Modification request text",
	"QuestionText": "Question text",
}

func fieldLabel(field string) string {
	if l, ok := fieldLabels[field]; ok {
		return l
	}
	return field
}

// callerOf returns the authenticated caller. Routes using it sit behind Authenticate.
func callerOf(r *http.Request) (*session.Caller, error) {
	c, ok := session.CallerFrom(r.Context())
	if !ok {
		return nil, apierr.New(apierr.Unauthorized, "Authentication required")
	}
	return c, nil
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name, message string) (uint, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || id == 0 {
		return 0, apierr.New(apierr.Validation, message)
	}
	return uint(id), nil
}

// OptionalID is a user id sent by clients either as a number or as a numeric string.
type OptionalID struct {
	Set   bool
	Value uint
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OptionalID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*o = OptionalID{}
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid user id %q", s)
	}
	*o = OptionalID{Set: true, Value: uint(v)}
	return nil
}

// actingUser checks an optional body userId against the authenticated caller.
func actingUser(r *http.Request, claimed OptionalID) (*session.Caller, error) {
	c, err := callerOf(r)
	if err != nil {
		return nil, err
	}
	if claimed.Set && claimed.Value != c.ID {
		return nil, apierr.New(apierr.Forbidden, "Forbidden: user mismatch")
	}
	return c, nil
}
