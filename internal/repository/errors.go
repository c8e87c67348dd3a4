package repository

import "errors"

var (
	// ErrNotFound is returned when a requested key doesn't exist in a partition
	ErrNotFound = errors.New("not found")

	// ErrUnknownPartition is returned when a partition is not part of the schema
	ErrUnknownPartition = errors.New("unknown partition")

	// ErrInvalidInput is returned when a stored value cannot be keyed or decoded
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable is returned when a backend cannot be opened in this environment
	ErrUnavailable = errors.New("backend unavailable")
)
