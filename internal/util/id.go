package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random UUID, optionally namespaced as "<prefix>_<uuid>".
// Postgres-backed rows use the bare form so it fits a uuid column.
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// IsUUID reports whether value is a canonical UUID string.
func IsUUID(value string) bool {
	_, err := uuid.Parse(strings.TrimSpace(value))
	return err == nil && len(strings.TrimSpace(value)) == 36
}
