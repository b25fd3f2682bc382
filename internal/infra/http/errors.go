package http

import (
	"errors"
	"net/http"

	"github.com/bcromer77/prooftimelines/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteError maps a usecase error onto the response. Absent and foreign
// resources share one not-found answer.
func WriteError(c *gin.Context, err error) {
	if invalid, ok := domain.AsInvalidInput(err); ok {
		writeErrorBody(c, http.StatusBadRequest, errorResponse{Code: invalid.Code, Message: invalid.Message, Details: invalid.Details})
		return
	}
	if dup, ok := domain.AsDuplicateEvidence(err); ok {
		writeErrorBody(c, http.StatusConflict, errorResponse{
			Code:    "DUPLICATE_EVIDENCE",
			Message: "identical content already committed to this case",
			Details: map[string]any{"evidence_id": dup.EvidenceID},
		})
		return
	}

	status, code, message := http.StatusInternalServerError, "INTERNAL", "internal error"
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status, code, message = http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"
	case errors.Is(err, domain.ErrCaseNotFound):
		status, code, message = http.StatusNotFound, "CASE_NOT_FOUND", "case not found"
	case errors.Is(err, domain.ErrEventNotFound):
		status, code, message = http.StatusNotFound, "EVENT_NOT_FOUND", "event not found"
	case errors.Is(err, domain.ErrEvidenceNotFound):
		status, code, message = http.StatusNotFound, "EVIDENCE_NOT_FOUND", "evidence not found"
	case errors.Is(err, domain.ErrNotFound):
		status, code, message = http.StatusNotFound, "NOT_FOUND", "not found"
	case errors.Is(err, domain.ErrConflict):
		status, code, message = http.StatusConflict, "CONFLICT", "conflict"
	case errors.Is(err, domain.ErrStorage):
		status, code, message = http.StatusServiceUnavailable, "STORAGE_WRITE_FAILED", "evidence storage unavailable"
		if c.Request.Method == http.MethodGet {
			code = "STORAGE_READ_FAILED"
		}
	case errors.Is(err, domain.ErrTransaction):
		status, code, message = http.StatusInternalServerError, "TRANSACTION_ABORTED", "commit failed, retry the upload"
	}
	writeErrorCode(c, status, code, message)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	writeErrorBody(c, status, errorResponse{Code: code, Message: message})
}

func writeErrorBody(c *gin.Context, status int, body errorResponse) {
	c.JSON(status, body)
}

// ParseUUIDParam reads a path parameter that must be a UUID. On failure it
// writes a 400 with code and returns false.
func ParseUUIDParam(c *gin.Context, name, code string) (string, bool) {
	raw := c.Param(name)
	parsed, err := uuid.Parse(raw)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, code, name+" must be a UUID")
		return "", false
	}
	return parsed.String(), true
}
