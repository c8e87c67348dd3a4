package record

import (
	"strings"

	"github.com/google/uuid"
)

// LocalIDPrefix marks ids issued on this device before the remote has seen them.
const LocalIDPrefix = "local_"

// NewLocalID returns a sortable locally-issued id.
func NewLocalID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return LocalIDPrefix + id.String(), nil
}

// IsLocalID reports whether id was issued locally.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}
