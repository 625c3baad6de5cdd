package id

import (
	crand "crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrInvalidULID is returned when a ULID string is invalid.
var ErrInvalidULID = errors.New("invalid ULID format")

// ULIDGenerator generates ULIDs with a monotonic entropy source, so IDs
// created within the same millisecond still sort in creation order.
type ULIDGenerator struct {
	entropy *ulid.LockedMonotonicReader
}

// NewULIDGenerator creates a new ULID generator.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: &ulid.LockedMonotonicReader{
			MonotonicReader: ulid.Monotonic(crand.Reader, 0),
		},
	}
}

// Generate creates a new ULID string.
func (g *ULIDGenerator) Generate() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// ParseULID validates a ULID string and returns its canonical form.
func ParseULID(s string) (string, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return "", ErrInvalidULID
	}
	return u.String(), nil
}
