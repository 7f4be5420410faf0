// Package fact defines the working-memory unit of the rule engine: the
// immutable Fact and its derived-fact provenance record.
package fact

import (
	"strings"
	"time"

	"github.com/reteforge/engine/pkg/factjson"
)

// ID is the opaque, comparable, hashable identifier a caller assigns to a
// fact. The engine never generates these for asserted facts; it only
// generates fresh ones for derived facts emitted by a production (see
// package ids).
type ID string

// Value is the type of a single attribute value. Supported kinds: int64,
// float64, string, bool, time.Time, and homogeneous []Value lists.
type Value = any

// Fact is the immutable unit of working memory. Facts are never mutated in
// place; Modify is defined as retract-then-assert at the engine layer.
type Fact struct {
	ID         ID
	Type       string
	Attributes map[string]Value

	// DerivedFrom is non-nil when this fact was produced by a production's
	// emit action rather than asserted directly by a caller. Provenance is
	// data, not control: retracting a parent fact never walks or
	// invalidates a descendant's DerivedFrom record.
	DerivedFrom *Provenance
}

// Provenance records the derivation lineage of an emitted fact.
type Provenance struct {
	ProductionID   string
	TokenSignature string
	ParentFactIDs  []ID
	DerivedAt      time.Time
}

// Get returns an attribute value and whether it was present. A dotted field
// name that does not match a top-level attribute directly is retried as a
// gjson path against the attribute named by its first segment, letting a
// test chain or binding reach into a nested JSON payload (e.g. an oracle
// response) stored unparsed in an attribute.
func (f Fact) Get(field string) (Value, bool) {
	if v, ok := f.Attributes[field]; ok {
		return v, ok
	}
	base, rest, nested := strings.Cut(field, ".")
	if !nested {
		return nil, false
	}
	attr, ok := f.Attributes[base]
	if !ok {
		return nil, false
	}
	raw, ok := factjson.AsRaw(attr)
	if !ok {
		return nil, false
	}
	return factjson.Get(raw, rest)
}

// Valid reports whether the fact carries the two attributes the engine
// requires of every asserted fact: a non-empty ID and Type.
func (f Fact) Valid() bool {
	return f.ID != "" && f.Type != ""
}

// Clone returns a deep-enough copy of f for safe storage outside the
// caller's slice (the Attributes map is copied; attribute values are not,
// since Value is expected to be immutable data).
func (f Fact) Clone() Fact {
	attrs := make(map[string]Value, len(f.Attributes))
	for k, v := range f.Attributes {
		attrs[k] = v
	}
	out := f
	out.Attributes = attrs
	return out
}
