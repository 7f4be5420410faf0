// Package rete implements alpha/beta propagation over a compiled network:
// the core match algorithm that turns an assert or retract into alpha
// memory updates, beta joins, and agenda activations.
package rete

import (
	"fmt"
	"time"

	"github.com/reteforge/engine/domain/activation"
	"github.com/reteforge/engine/domain/fact"
	"github.com/reteforge/engine/domain/network"
	"github.com/reteforge/engine/domain/token"
	"github.com/reteforge/engine/engine/agenda"
	"github.com/reteforge/engine/engine/memory"
	"github.com/reteforge/engine/engine/refraction"
	"github.com/reteforge/engine/registry/predicate"
)

// Sequencer hands out monotonically increasing sequence numbers for
// activation ordering, shared across a single engine instance.
type Sequencer struct {
	next int64
}

// Next returns the next sequence number.
func (s *Sequencer) Next() int64 {
	s.next++
	return s.next
}

// Tracer receives propagation events. A nil Context.Tracer is valid: the
// Context substitutes a no-op implementation.
type Tracer interface {
	AlphaMatch(alphaID network.NodeID, factID fact.ID)
	BetaJoin(betaID network.NodeID, tok token.Token)
	Activation(act activation.Activation)
	Refraction(key activation.RefractionKey)
}

// Context bundles the collaborators propagation needs on every call,
// avoiding a long, repetitive parameter list across the recursive match
// functions below.
type Context struct {
	Net        *network.Network
	WM         *memory.WorkingMemory
	Agenda     *agenda.Agenda
	Refraction refraction.Store
	RefractOpt refraction.Options
	Predicates *predicate.Registry
	Seq        *Sequencer
	Tracer     Tracer
	Now        func() time.Time
}

func (c *Context) trace() Tracer {
	if c.Tracer != nil {
		return c.Tracer
	}
	return noopTracer{}
}

type noopTracer struct{}

func (noopTracer) AlphaMatch(network.NodeID, fact.ID)          {}
func (noopTracer) BetaJoin(network.NodeID, token.Token)        {}
func (noopTracer) Activation(activation.Activation)            {}
func (noopTracer) Refraction(activation.RefractionKey)          {}

// PropagateAssert runs f through every alpha entry point for its type,
// inserting it into the matching alpha memories and propagating matches
// forward through the beta network to the agenda.
func PropagateAssert(c *Context, f fact.Fact) error {
	for _, alphaID := range c.Net.AlphaEntryPoints(f.Type) {
		alpha, ok := c.Net.Alpha(alphaID)
		if !ok {
			continue
		}
		ok, err := testAlpha(c, alpha, f)
		if err != nil {
			return fmt.Errorf("rete: evaluate alpha %s: %w", alphaID, err)
		}
		if !ok {
			continue
		}
		onAlphaActivate(c, alpha, f)
	}
	return nil
}

// testAlpha reports whether f passes alpha's literal test chain and
// carries every field alpha.Bindings requires.
func testAlpha(c *Context, alpha network.AlphaNode, f fact.Fact) (bool, error) {
	for _, b := range alpha.Bindings {
		if _, ok := f.Get(b.Field); !ok {
			return false, nil
		}
	}
	for _, t := range alpha.Tests {
		v, ok := f.Get(t.Field)
		if !ok {
			return false, nil
		}
		pred, ok := c.Predicates.Lookup(t.Op)
		if !ok {
			return false, fmt.Errorf("unknown predicate operator %q", t.Op)
		}
		pass, err := pred.Evaluate(t.Op, v, t.Value)
		if err != nil {
			return false, fmt.Errorf("operator %q: %w", t.Op, err)
		}
		if !pass {
			return false, nil
		}
	}
	return true, nil
}

// extractBindings pulls alpha's declared bindings out of f's attributes.
func extractBindings(bindings []network.Binding, f fact.Fact) map[string]fact.Value {
	out := make(map[string]fact.Value, len(bindings))
	for _, b := range bindings {
		if v, ok := f.Get(b.Field); ok {
			out[b.Name] = v
		}
	}
	return out
}

// onAlphaActivate records f's match in alpha's memory, synthesizes the
// resulting root token, and propagates it to alpha's children plus any
// beta node that joins against alpha as its right (candidate) input.
func onAlphaActivate(c *Context, alpha network.AlphaNode, f fact.Fact) {
	bindings := extractBindings(alpha.Bindings, f)
	c.WM.AlphaMemory(alpha.ID).Add(f.ID, bindings)
	c.trace().AlphaMatch(alpha.ID, f.ID)

	root := token.New(bindings, f.ID)
	for _, childID := range alpha.Children {
		propagateToken(c, childID, root)
	}

	for _, betaID := range c.Net.RightConsumers(alpha.ID) {
		beta, ok := c.Net.Beta(betaID)
		if !ok {
			continue
		}
		for _, leftTok := range leftTokensFor(c, beta.Left) {
			tryJoinToken(c, beta, leftTok, f.ID, bindings)
		}
	}
}

// leftTokensFor returns the current set of tokens available at node's
// output: an alpha node's current matches synthesized as root tokens, or
// a beta node's accumulated token memory.
func leftTokensFor(c *Context, nodeID network.NodeID) []token.Token {
	if alpha, ok := c.Net.Alpha(nodeID); ok {
		mem := c.WM.AlphaMemory(nodeID)
		out := make([]token.Token, 0, mem.Size())
		for _, id := range mem.IDs() {
			f, ok := c.WM.Get(id)
			if !ok {
				continue
			}
			out = append(out, token.New(extractBindings(alpha.Bindings, f), id))
		}
		return out
	}
	if _, ok := c.Net.Beta(nodeID); ok {
		return c.WM.BetaMemory(nodeID).Tokens()
	}
	return nil
}

// propagateToken sends tok into nodeID, which is either a BetaNode (where
// it becomes a left-input candidate to join against the node's current
// right-side alpha memory) or a ProductionNode (where it directly builds
// an activation).
func propagateToken(c *Context, nodeID network.NodeID, tok token.Token) {
	if beta, ok := c.Net.Beta(nodeID); ok {
		joinLeftToken(c, beta, tok)
		return
	}
	if prod, ok := c.Net.Production(nodeID); ok {
		buildActivation(c, prod, tok)
		return
	}
}

// joinLeftToken joins tok, arriving as a left-input candidate, against
// every fact currently in beta's right-side alpha memory.
func joinLeftToken(c *Context, beta network.BetaNode, tok token.Token) {
	rightAlpha, ok := c.Net.Alpha(beta.Right)
	if !ok {
		return
	}
	mem := c.WM.AlphaMemory(beta.Right)
	for _, id := range mem.IDs() {
		f, ok := c.WM.Get(id)
		if !ok {
			continue
		}
		rightBindings := extractBindings(rightAlpha.Bindings, f)
		tryJoinToken(c, beta, tok, id, rightBindings)
	}
}

// tryJoinToken is the shared equality-join test: every name in
// beta.JoinKeys must be present and equal on both sides.
func tryJoinToken(c *Context, beta network.BetaNode, leftTok token.Token, rightID fact.ID, rightBindings map[string]fact.Value) {
	for _, key := range beta.JoinKeys {
		lv, lok := leftTok.Bindings[key]
		rv, rok := rightBindings[key]
		if !lok || !rok {
			return
		}
		if !valuesEqual(lv, rv) {
			return
		}
	}

	extracted := map[string]fact.Value{}
	if rightFact, ok := c.WM.Get(rightID); ok {
		extracted = extractBindings(beta.Bindings, rightFact)
	}
	joined := leftTok.Extend(extracted, rightID)

	c.WM.BetaMemory(beta.ID).Add(joined)
	c.trace().BetaJoin(beta.ID, joined)

	for _, childID := range beta.Children {
		propagateToken(c, childID, joined)
	}
}

func valuesEqual(l, r fact.Value) bool {
	lf, lok := toComparableFloat(l)
	rf, rok := toComparableFloat(r)
	if lok && rok {
		return lf == rf
	}
	return fmt.Sprintf("%v", l) == fmt.Sprintf("%v", r)
}

func toComparableFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// buildActivation constructs an activation for prod under tok and, unless
// it is already refracted, adds it to the agenda.
func buildActivation(c *Context, prod network.ProductionNode, tok token.Token) {
	now := c.Now()
	act := activation.New(prod.ProductionID, tok, prod.Salience, now, c.Seq.Next(), prod.Metadata)

	if c.Refraction.WouldRefract(act.Key(), now, c.RefractOpt) {
		c.trace().Refraction(act.Key())
		return
	}
	c.Agenda.Add(act)
	c.trace().Activation(act)
}

// PropagateRetract removes id from every alpha memory that holds it,
// cascades the removal through beta memories and the agenda. It is the caller's
// responsibility to remove id from working memory itself.
func PropagateRetract(c *Context, f fact.Fact) {
	for _, alphaID := range c.Net.AlphaEntryPoints(f.Type) {
		alpha, ok := c.Net.Alpha(alphaID)
		if !ok {
			continue
		}
		mem := c.WM.AlphaMemory(alphaID)
		if !mem.Contains(f.ID) {
			continue
		}
		bindings := extractBindings(alpha.Bindings, f)
		mem.Remove(f.ID, bindings)
	}
	cascadeRetract(c, f.ID)
	c.Agenda.RemoveByFactID(f.ID)
}

// cascadeRetract removes every token referencing id from every beta
// memory in the network. A single pass over all beta nodes is sufficient
// since token fact-id lists are closed over their full join history.
func cascadeRetract(c *Context, id fact.ID) {
	for _, betaID := range c.Net.AllBetaIDs() {
		c.WM.BetaMemory(betaID).RemoveByFactID(id)
	}
}
