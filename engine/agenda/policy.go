package agenda

import "github.com/reteforge/engine/domain/activation"

// Policy determines agenda ordering via a total compare: Before(a, b)
// reports whether a must fire before b. Implementations must define a
// total order (no two distinct activations may compare equal both ways)
// so agenda iteration is deterministic.
type Policy interface {
	Name() string
	Before(a, b activation.Activation) bool
}

// defaultPolicy orders by (salience desc, specificity desc, recency desc),
// i.e. higher-salience and more-specific rules first, ties broken LIFO.
type defaultPolicy struct{}

func (defaultPolicy) Name() string { return "default" }

func (defaultPolicy) Before(a, b activation.Activation) bool {
	if a.Salience != b.Salience {
		return a.Salience > b.Salience
	}
	if a.Specificity != b.Specificity {
		return a.Specificity > b.Specificity
	}
	if a.Seq != b.Seq {
		return a.Seq > b.Seq
	}
	return a.Token.Signature() < b.Token.Signature()
}

// salienceOnlyPolicy orders by (salience desc, production id asc), giving
// a deterministic order that does not depend on recency.
type salienceOnlyPolicy struct{}

func (salienceOnlyPolicy) Name() string { return "salience_only" }

func (salienceOnlyPolicy) Before(a, b activation.Activation) bool {
	if a.Salience != b.Salience {
		return a.Salience > b.Salience
	}
	if a.ProductionID != b.ProductionID {
		return a.ProductionID < b.ProductionID
	}
	return a.Token.Signature() < b.Token.Signature()
}

// fifoPolicy orders by insertion sequence ascending.
type fifoPolicy struct{}

func (fifoPolicy) Name() string { return "fifo" }

func (fifoPolicy) Before(a, b activation.Activation) bool {
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.Token.Signature() < b.Token.Signature()
}

// lifoPolicy orders by insertion sequence descending.
type lifoPolicy struct{}

func (lifoPolicy) Name() string { return "lifo" }

func (lifoPolicy) Before(a, b activation.Activation) bool {
	if a.Seq != b.Seq {
		return a.Seq > b.Seq
	}
	return a.Token.Signature() < b.Token.Signature()
}

// Built-in policy tags.
const (
	TagDefault      = "default"
	TagSalienceOnly = "salience_only"
	TagFIFO         = "fifo"
	TagLIFO         = "lifo"
)

// Builtins returns the four required built-in policies keyed by tag.
func Builtins() map[string]Policy {
	return map[string]Policy{
		TagDefault:      defaultPolicy{},
		TagSalienceOnly: salienceOnlyPolicy{},
		TagFIFO:         fifoPolicy{},
		TagLIFO:         lifoPolicy{},
	}
}
