// Package id generates the identifiers the chatbot hands out: ULIDs for
// chunks and request IDs, UUID v4 for chat sessions.
package id

import "sync"

var (
	defaultULID *ULIDGenerator
	defaultUUID *UUIDGenerator
	initOnce    sync.Once
)

func initDefaults() {
	initOnce.Do(func() {
		defaultULID = NewULIDGenerator()
		defaultUUID = NewUUIDGenerator()
	})
}

// NewULID generates a new ULID string. ULIDs sort by creation time, so IDs
// assigned in sequence stay in sequence.
func NewULID() string {
	initDefaults()
	return defaultULID.Generate()
}

// NewUUID generates a new UUID v4 string.
func NewUUID() string {
	initDefaults()
	return defaultUUID.Generate()
}
