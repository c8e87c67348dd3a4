// Package remote holds RemoteClient implementations.
package remote

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rpggio/farmsync/internal/domain/record"
)

var (
	// ErrNotFound is returned by PartialUpdate when the document doesn't exist.
	ErrNotFound = errors.New("remote document not found")
	// ErrOffline is returned by clients that cannot reach the remote.
	ErrOffline = errors.New("remote unreachable")
	// ErrInvalidInput is returned for unusable DSNs and arguments.
	ErrInvalidInput = errors.New("invalid remote input")
)

// Client is the full remote surface used by the app.
type Client interface {
	record.RemoteClient
	Close() error
}

// BuildFromDSN returns the client selected by the DSN scheme.
func BuildFromDSN(dsn string) (Client, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty dsn", ErrInvalidInput)
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return NewPostgres(dsn)
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInput, parsed.Scheme)
	}
}
