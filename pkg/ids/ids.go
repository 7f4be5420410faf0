// Package ids generates fresh, globally-unique identifiers for derived
// facts and trace correlation, backed by github.com/google/uuid.
package ids

import (
	"github.com/google/uuid"

	"github.com/reteforge/engine/domain/fact"
)

// NewFactID returns a fresh 128-bit fact id, base16-encoded via the
// standard UUID string form. Uniqueness is guaranteed for the lifetime of
// the engine instance per spec section 4.5.
func NewFactID() fact.ID {
	return fact.ID(uuid.NewString())
}

// NewCorrelationID returns a fresh id for tracer event correlation.
func NewCorrelationID() string {
	return uuid.NewString()
}
