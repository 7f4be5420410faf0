// Package memory implements working memory and the alpha/beta memories
// that the RETE propagation algorithm reads and writes.
package memory

import (
	"github.com/reteforge/engine/domain/fact"
)

// AlphaMemory holds the set of fact ids that have passed a single alpha
// node's test chain, plus field-value indexes built opportunistically as
// facts are observed, enabling O(1) lookup during equality joins.
type AlphaMemory struct {
	order []fact.ID
	ids   map[fact.ID]int // id -> index into order, for O(1) removal
	// fieldIndex[field][indexKey(value)] -> set of ids
	fieldIndex map[string]map[string]map[fact.ID]struct{}
}

// NewAlphaMemory constructs an empty alpha memory.
func NewAlphaMemory() *AlphaMemory {
	return &AlphaMemory{
		ids:        make(map[fact.ID]int),
		fieldIndex: make(map[string]map[string]map[fact.ID]struct{}),
	}
}

// Add inserts id into the memory, indexing every attribute in attrs.
// No-op if id is already present (duplicate propagation is idempotent).
func (m *AlphaMemory) Add(id fact.ID, attrs map[string]fact.Value) {
	if _, exists := m.ids[id]; exists {
		return
	}
	m.ids[id] = len(m.order)
	m.order = append(m.order, id)

	for field, value := range attrs {
		byValue, ok := m.fieldIndex[field]
		if !ok {
			byValue = make(map[string]map[fact.ID]struct{})
			m.fieldIndex[field] = byValue
		}
		key := indexKey(value)
		set, ok := byValue[key]
		if !ok {
			set = make(map[fact.ID]struct{})
			byValue[key] = set
		}
		set[id] = struct{}{}
	}
}

// Remove deletes id from the memory and all of its field-value index
// entries. attrs must match what was originally passed to Add.
func (m *AlphaMemory) Remove(id fact.ID, attrs map[string]fact.Value) {
	idx, exists := m.ids[id]
	if !exists {
		return
	}
	delete(m.ids, id)
	m.order = append(m.order[:idx], m.order[idx+1:]...)
	for i := idx; i < len(m.order); i++ {
		m.ids[m.order[i]] = i
	}

	for field, value := range attrs {
		byValue, ok := m.fieldIndex[field]
		if !ok {
			continue
		}
		key := indexKey(value)
		if set, ok := byValue[key]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(byValue, key)
			}
		}
	}
}

// Contains reports whether id currently passes this node's test chain.
func (m *AlphaMemory) Contains(id fact.ID) bool {
	_, ok := m.ids[id]
	return ok
}

// IDs returns the ids currently in the memory, in insertion order. The
// returned slice is a defensive copy.
func (m *AlphaMemory) IDs() []fact.ID {
	out := make([]fact.ID, len(m.order))
	copy(out, m.order)
	return out
}

// Size returns the number of facts currently in the memory.
func (m *AlphaMemory) Size() int {
	return len(m.order)
}

// ByField returns the ids whose indexed attribute field equals value, in
// insertion order. Used for O(1)-amortized equality-join candidate lookup.
func (m *AlphaMemory) ByField(field string, value fact.Value) []fact.ID {
	byValue, ok := m.fieldIndex[field]
	if !ok {
		return nil
	}
	set, ok := byValue[indexKey(value)]
	if !ok {
		return nil
	}
	out := make([]fact.ID, 0, len(set))
	for _, id := range m.order {
		if _, in := set[id]; in {
			out = append(out, id)
		}
	}
	return out
}
