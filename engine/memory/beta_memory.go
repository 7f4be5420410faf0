package memory

import (
	"github.com/reteforge/engine/domain/fact"
	"github.com/reteforge/engine/domain/token"
)

// BetaMemory holds the tokens produced by a join node, hash-indexed by the
// binding names used for downstream equality joins. It doubles as the
// "token table" of spec section 3: the per-node record enabling retraction
// traversal (remove every token whose fact-id list contains a retracted id).
type BetaMemory struct {
	order []token.Token
	// bindingIndex[name][indexKey(value)] -> set of token signatures
	bindingIndex map[string]map[string]map[string]struct{}
	bySignature  map[string]int // signature -> index into order
}

// NewBetaMemory constructs an empty beta memory.
func NewBetaMemory() *BetaMemory {
	return &BetaMemory{
		bindingIndex: make(map[string]map[string]map[string]struct{}),
		bySignature:  make(map[string]int),
	}
}

// Add appends tok to the memory and indexes its bindings. No-op if an
// identical-signature token is already present.
func (m *BetaMemory) Add(tok token.Token) {
	if _, exists := m.bySignature[tok.Signature()]; exists {
		return
	}
	m.bySignature[tok.Signature()] = len(m.order)
	m.order = append(m.order, tok)

	for name, value := range tok.Bindings {
		byValue, ok := m.bindingIndex[name]
		if !ok {
			byValue = make(map[string]map[string]struct{})
			m.bindingIndex[name] = byValue
		}
		key := indexKey(value)
		set, ok := byValue[key]
		if !ok {
			set = make(map[string]struct{})
			byValue[key] = set
		}
		set[tok.Signature()] = struct{}{}
	}
}

// Tokens returns all tokens currently stored, in insertion order. The
// returned slice is a defensive copy.
func (m *BetaMemory) Tokens() []token.Token {
	out := make([]token.Token, len(m.order))
	copy(out, m.order)
	return out
}

// Size returns the number of tokens currently stored.
func (m *BetaMemory) Size() int {
	return len(m.order)
}

// ByBinding returns tokens whose binding name equals value, in insertion
// order.
func (m *BetaMemory) ByBinding(name string, value fact.Value) []token.Token {
	byValue, ok := m.bindingIndex[name]
	if !ok {
		return nil
	}
	set, ok := byValue[indexKey(value)]
	if !ok {
		return nil
	}
	out := make([]token.Token, 0, len(set))
	for _, t := range m.order {
		if _, in := set[t.Signature()]; in {
			out = append(out, t)
		}
	}
	return out
}

// RemoveByFactID removes every token whose fact-id list contains id and
// returns the removed tokens, so callers can cascade the removal to
// downstream memories and the agenda.
func (m *BetaMemory) RemoveByFactID(id fact.ID) []token.Token {
	var removed []token.Token
	var kept []token.Token
	for _, t := range m.order {
		if t.Contains(id) {
			removed = append(removed, t)
			continue
		}
		kept = append(kept, t)
	}
	if len(removed) == 0 {
		return nil
	}

	m.order = kept
	m.bySignature = make(map[string]int, len(kept))
	m.bindingIndex = make(map[string]map[string]map[string]struct{})
	for i, t := range kept {
		m.bySignature[t.Signature()] = i
		for name, value := range t.Bindings {
			byValue, ok := m.bindingIndex[name]
			if !ok {
				byValue = make(map[string]map[string]struct{})
				m.bindingIndex[name] = byValue
			}
			key := indexKey(value)
			set, ok := byValue[key]
			if !ok {
				set = make(map[string]struct{})
				byValue[key] = set
			}
			set[t.Signature()] = struct{}{}
		}
	}
	return removed
}
