package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/studyctl/internal/query"
	"github.com/dmitrijs2005/studyctl/internal/server/records"
	"github.com/dmitrijs2005/studyctl/internal/server/users"
)

const maxRequestBytes = 1 << 20

// Error codes carried in the envelope's code field.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeEmailNotVerified = "EMAIL_NOT_VERIFIED"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "DUPLICATE_KEY"
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	CodeInternal         = "INTERNAL_ERROR"
)

type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Error      string      `json:"error,omitempty"`
	Code       string      `json:"code,omitempty"`
	Pagination *query.Page `json:"pagination,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

func writePage(w http.ResponseWriter, data any, page query.Page) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Pagination: &page})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Success: false, Error: message, Message: message, Code: code})
}

// writeServiceError maps a service error onto a status and code. Internal
// errors are logged by the caller; their text is not sent.
func writeServiceError(w http.ResponseWriter, err error) (internal bool) {
	switch {
	case errors.Is(err, records.ErrValidation), errors.Is(err, users.ErrValidation):
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, users.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid or expired token")
	case errors.Is(err, records.ErrNotFound), errors.Is(err, users.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found")
	case errors.Is(err, users.ErrAlreadyExists):
		writeError(w, http.StatusConflict, CodeConflict, "User already exists with this email")
	case errors.Is(err, users.ErrEmailNotVerified):
		writeError(w, http.StatusForbidden, CodeEmailNotVerified,
			"Please verify your email address before logging in")
	case errors.Is(err, users.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid credentials")
	default:
		writeError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
		return true
	}
	return false
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched
// when optional is set.
func decodeJSON(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: malformed request body", records.ErrValidation)
	}
	return nil
}
