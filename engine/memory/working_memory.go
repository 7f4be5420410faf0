package memory

import (
	"fmt"

	"github.com/reteforge/engine/domain/fact"
	"github.com/reteforge/engine/domain/network"
)

// WorkingMemory is the master fact store (id -> fact, type -> id-set) and
// owner of every alpha and beta memory in the network. It belongs
// exclusively to a single engine instance.
type WorkingMemory struct {
	net *network.Network

	facts          map[fact.ID]fact.Fact
	typeIndex      map[string]map[fact.ID]struct{}
	insertionOrder []fact.ID
	insertionIdx   map[fact.ID]int

	alpha map[network.NodeID]*AlphaMemory
	beta  map[network.NodeID]*BetaMemory
}

// New constructs an empty working memory over net. Alpha and beta memories
// are created on first access.
func New(net *network.Network) *WorkingMemory {
	wm := &WorkingMemory{
		net:          net,
		facts:        make(map[fact.ID]fact.Fact),
		typeIndex:    make(map[string]map[fact.ID]struct{}),
		insertionIdx: make(map[fact.ID]int),
		alpha:        make(map[network.NodeID]*AlphaMemory),
		beta:         make(map[network.NodeID]*BetaMemory),
	}
	return wm
}

// AlphaMemory returns the alpha memory for id, creating one lazily the
// first time it is referenced (the network is immutable, so the set of
// valid ids is fixed, but memories themselves are cheap to allocate on
// first use rather than eagerly for every node at construction).
func (wm *WorkingMemory) AlphaMemory(id network.NodeID) *AlphaMemory {
	m, ok := wm.alpha[id]
	if !ok {
		m = NewAlphaMemory()
		wm.alpha[id] = m
	}
	return m
}

// BetaMemory returns the beta memory for id, creating one lazily.
func (wm *WorkingMemory) BetaMemory(id network.NodeID) *BetaMemory {
	m, ok := wm.beta[id]
	if !ok {
		m = NewBetaMemory()
		wm.beta[id] = m
	}
	return m
}

// Has reports whether id is currently present in working memory.
func (wm *WorkingMemory) Has(id fact.ID) bool {
	_, ok := wm.facts[id]
	return ok
}

// Get returns the fact stored under id.
func (wm *WorkingMemory) Get(id fact.ID) (fact.Fact, bool) {
	f, ok := wm.facts[id]
	return f, ok
}

// Insert adds f to working memory. Returns an error if a fact with the
// same id already exists (duplicate assertion is rejected, per spec
// boundary behavior).
func (wm *WorkingMemory) Insert(f fact.Fact) error {
	if wm.Has(f.ID) {
		return fmt.Errorf("working memory: duplicate fact id %q", f.ID)
	}
	wm.facts[f.ID] = f

	set, ok := wm.typeIndex[f.Type]
	if !ok {
		set = make(map[fact.ID]struct{})
		wm.typeIndex[f.Type] = set
	}
	set[f.ID] = struct{}{}

	wm.insertionIdx[f.ID] = len(wm.insertionOrder)
	wm.insertionOrder = append(wm.insertionOrder, f.ID)
	return nil
}

// Remove deletes the fact stored under id and returns it as the
// retraction payload. Returns false if id was not present (retract of an
// unknown id is a no-op at the engine layer).
func (wm *WorkingMemory) Remove(id fact.ID) (fact.Fact, bool) {
	f, ok := wm.facts[id]
	if !ok {
		return fact.Fact{}, false
	}
	delete(wm.facts, id)
	if set, ok := wm.typeIndex[f.Type]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(wm.typeIndex, f.Type)
		}
	}
	if idx, ok := wm.insertionIdx[id]; ok {
		wm.insertionOrder = append(wm.insertionOrder[:idx], wm.insertionOrder[idx+1:]...)
		delete(wm.insertionIdx, id)
		for i := idx; i < len(wm.insertionOrder); i++ {
			wm.insertionIdx[wm.insertionOrder[i]] = i
		}
	}
	return f, true
}

// TypeIDs returns the ids currently asserted for a fact type.
func (wm *WorkingMemory) TypeIDs(factType string) []fact.ID {
	set, ok := wm.typeIndex[factType]
	if !ok {
		return nil
	}
	out := make([]fact.ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Size returns the number of facts currently in working memory.
func (wm *WorkingMemory) Size() int {
	return len(wm.facts)
}

// InsertionOrder returns fact ids in the order they were inserted (oldest
// first), used by the LRU approximation of the eviction policy.
func (wm *WorkingMemory) InsertionOrder() []fact.ID {
	out := make([]fact.ID, len(wm.insertionOrder))
	copy(out, wm.insertionOrder)
	return out
}

// All returns every fact currently held, for snapshotting.
func (wm *WorkingMemory) All() map[fact.ID]fact.Fact {
	out := make(map[fact.ID]fact.Fact, len(wm.facts))
	for k, v := range wm.facts {
		out[k] = v
	}
	return out
}

// Reset clears working memory and every alpha/beta memory, preserving the
// network reference.
func (wm *WorkingMemory) Reset() {
	wm.facts = make(map[fact.ID]fact.Fact)
	wm.typeIndex = make(map[string]map[fact.ID]struct{})
	wm.insertionOrder = nil
	wm.insertionIdx = make(map[fact.ID]int)
	wm.alpha = make(map[network.NodeID]*AlphaMemory)
	wm.beta = make(map[network.NodeID]*BetaMemory)
}
