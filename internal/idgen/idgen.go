package idgen

import (
	"sync/atomic"

	"github.com/google/uuid"
)

/***************
 * Link IDs
 ***************/

// Sequence hands out positive, strictly increasing int64 identifiers starting at 1.
// Values are never reused. It is safe for concurrent use.
type Sequence struct {
	last atomic.Int64
}

// NewSequence returns a Sequence whose first value is 1.
func NewSequence() *Sequence { return &Sequence{} }

// Next returns the next identifier.
func (s *Sequence) Next() int64 { return s.last.Add(1) }

/***************
 * Request IDs
 ***************/

// RequestID returns a time-ordered UUID v7 string, falling back to v4 if the
// v7 clock sequence cannot be read.
func RequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
