package record

import "errors"

var (
	// ErrRecordNotFound indicates the record doesn't exist or belongs to another owner.
	ErrRecordNotFound = errors.New("record not found")
	// ErrNoOwner indicates the context carries no owner identity.
	ErrNoOwner = errors.New("no owner in context")
	// ErrInvalidInput indicates invalid input for record operations.
	ErrInvalidInput = errors.New("invalid record input")
	// ErrOffline indicates a remote call was skipped because connectivity is down.
	ErrOffline = errors.New("offline")
)
