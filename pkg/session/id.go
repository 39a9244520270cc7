package session

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random session identifier. Identifiers are never reused.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id looks like an identifier issued by NewID.
func ValidID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
