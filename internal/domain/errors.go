package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStorage         = errors.New("storage failure")
	ErrTransaction     = errors.New("transaction failure")
)

var (
	ErrCaseNotFound     = fmt.Errorf("case %w", ErrNotFound)
	ErrEventNotFound    = fmt.Errorf("event %w", ErrNotFound)
	ErrEvidenceNotFound = fmt.Errorf("evidence %w", ErrNotFound)
)

// DuplicateEvidenceError reports byte-identical content already committed to
// the same case by the same user.
type DuplicateEvidenceError struct {
	EvidenceID string
}

func (e *DuplicateEvidenceError) Error() string {
	if e == nil {
		return ""
	}
	return "duplicate evidence: " + e.EvidenceID
}

func (e *DuplicateEvidenceError) Unwrap() error {
	return ErrConflict
}

type InvalidInputError struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *InvalidInputError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidArgument
}

func InvalidInput(code, message string) *InvalidInputError {
	return &InvalidInputError{Code: code, Message: message}
}

func AsDuplicateEvidence(err error) (*DuplicateEvidenceError, bool) {
	var dup *DuplicateEvidenceError
	if errors.As(err, &dup) {
		return dup, true
	}
	return nil, false
}

func AsInvalidInput(err error) (*InvalidInputError, bool) {
	var invalid *InvalidInputError
	if errors.As(err, &invalid) {
		return invalid, true
	}
	return nil, false
}
