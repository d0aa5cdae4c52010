package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a random hex token, optionally prefixed. Used for request ids
// and token identifiers that never reach a uuid column.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewUUID returns a random UUID for primary keys stored as uuid.
func NewUUID() string {
	return uuid.NewString()
}

// IsUUID reports whether value parses as a UUID.
func IsUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
