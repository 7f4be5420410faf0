// Package activation defines an agenda entry: a production matched under a
// specific token, awaiting conflict resolution and firing.
package activation

import (
	"time"

	"github.com/reteforge/engine/domain/token"
)

// Activation is a production whose left-hand side is fully satisfied under
// Token, pending agenda selection.
type Activation struct {
	ProductionID string
	Token        token.Token
	Salience     int
	Specificity  int
	InsertedAt   time.Time
	// Seq is a monotonically increasing sequence number assigned by the
	// engine at creation time. It is the authoritative recency tiebreaker:
	// InsertedAt carries wall-clock time (useful for tracing/snapshots),
	// but clock resolution can collide for activations created in the same
	// propagation pass, whereas Seq never does.
	Seq      int64
	Metadata map[string]any
}

// RefractionKey identifies this activation for refraction purposes:
// (production id, token signature).
type RefractionKey struct {
	ProductionID string
	TokenSig     string
}

// Key returns this activation's refraction key.
func (a Activation) Key() RefractionKey {
	return RefractionKey{ProductionID: a.ProductionID, TokenSig: a.Token.Signature()}
}

// New builds an activation with Specificity defaulting to the number of
// facts participating in token, per spec.
func New(productionID string, tok token.Token, salience int, insertedAt time.Time, seq int64, metadata map[string]any) Activation {
	return Activation{
		ProductionID: productionID,
		Token:        tok,
		Salience:     salience,
		Specificity:  len(tok.FactIDs),
		InsertedAt:   insertedAt,
		Seq:          seq,
		Metadata:     metadata,
	}
}

// Summary is the externally-visible, output-shape representation of an
// activation (the "activation-summary" referenced throughout the command
// surface).
type Summary struct {
	ProductionID string         `json:"production_id"`
	Bindings     map[string]any `json:"bindings"`
	FactIDs      []string       `json:"fact_ids"`
	Salience     int            `json:"salience"`
	Specificity  int            `json:"specificity"`
	InsertedAt   time.Time      `json:"inserted_at"`
}

// ToSummary projects an activation into its output shape.
func ToSummary(a Activation) Summary {
	ids := make([]string, len(a.Token.FactIDs))
	for i, id := range a.Token.FactIDs {
		ids[i] = string(id)
	}
	return Summary{
		ProductionID: a.ProductionID,
		Bindings:     a.Token.Bindings,
		FactIDs:      ids,
		Salience:     a.Salience,
		Specificity:  a.Specificity,
		InsertedAt:   a.InsertedAt,
	}
}
