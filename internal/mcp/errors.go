package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/farmsync/internal/app"
	"github.com/rpggio/farmsync/internal/domain/activity"
	"github.com/rpggio/farmsync/internal/domain/record"
	"github.com/rpggio/farmsync/internal/repository"
)

// APIError is the error shape tool results carry.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
	cause        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.cause }

// MapError maps domain errors to tool error codes. It returns nil for errors
// it doesn't recognize.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	apiErr := func(code, hint string) *APIError {
		return &APIError{Code: code, Message: err.Error(), RecoveryHint: hint, cause: err}
	}
	switch {
	case errors.Is(err, record.ErrRecordNotFound):
		return apiErr("RECORD_NOT_FOUND", "Check the id with list_records")
	case errors.Is(err, record.ErrNoOwner):
		return apiErr("UNAUTHORIZED", "Authenticate with a bearer token")
	case errors.Is(err, app.ErrUnknownKind):
		return apiErr("UNKNOWN_KIND", "Use one of: lead, client, visit, scheduled, sale")
	case errors.Is(err, app.ErrSignalReadOnly):
		return apiErr("READ_ONLY", "Edit the connectivity status file instead")
	case errors.Is(err, record.ErrInvalidInput), errors.Is(err, activity.ErrInvalidInput):
		return apiErr("INVALID_INPUT", "")
	case errors.Is(err, repository.ErrNotFound):
		return apiErr("NOT_FOUND", "")
	default:
		return nil
	}
}

// toolError converts err into the error returned from a tool handler.
func toolError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
