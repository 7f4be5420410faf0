// Package agenda implements the priority-ordered multiset of activations
// ready to fire, under a pluggable total-order policy.
package agenda

import (
	"container/heap"
	"sync"

	"github.com/reteforge/engine/domain/activation"
	"github.com/reteforge/engine/domain/fact"
)

// Agenda is a priority queue of activations backed by a binary heap keyed
// by the active Policy's comparator, giving O(log n) Add/Pop.
type Agenda struct {
	mu     sync.Mutex
	policy Policy
	h      *activationHeap
	byKey  map[activation.RefractionKey]*heapItem
	recent []activation.Activation
}

// New constructs an empty agenda ordered by policy.
func New(policy Policy) *Agenda {
	h := &activationHeap{policy: policy}
	heap.Init(h)
	return &Agenda{
		policy: policy,
		h:      h,
		byKey:  make(map[activation.RefractionKey]*heapItem),
	}
}

// SetPolicy swaps the ordering policy and re-heapifies the existing
// contents under the new comparator.
func (a *Agenda) SetPolicy(policy Policy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.policy = policy
	a.h.policy = policy
	heap.Init(a.h)
}

// Add inserts act into the agenda. If an activation with the same
// refraction key is already present, it is replaced in place (a
// re-derivation of an identical token/production pair does not duplicate
// agenda entries).
func (a *Agenda) Add(act activation.Activation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := act.Key()
	if existing, ok := a.byKey[key]; ok {
		existing.act = act
		heap.Fix(a.h, existing.index)
		a.recent = append(a.recent, act)
		return
	}

	item := &heapItem{act: act}
	a.byKey[key] = item
	heap.Push(a.h, item)
	a.recent = append(a.recent, act)
}

// Remove deletes the activation matching act's refraction key, if present.
func (a *Agenda) Remove(act activation.Activation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.removeItem(act.Key())
}

func (a *Agenda) removeItem(key activation.RefractionKey) {
	item, ok := a.byKey[key]
	if !ok {
		return
	}
	heap.Remove(a.h, item.index)
	delete(a.byKey, key)
}

// RemoveByFactID removes every activation whose token references id
// (invoked when id is retracted) and returns the removed activations.
func (a *Agenda) RemoveByFactID(id fact.ID) []activation.Activation {
	a.mu.Lock()
	defer a.mu.Unlock()

	var toRemove []activation.RefractionKey
	for _, item := range a.h.items {
		if item.act.Token.Contains(id) {
			toRemove = append(toRemove, item.act.Key())
		}
	}
	removed := make([]activation.Activation, 0, len(toRemove))
	for _, key := range toRemove {
		if item, ok := a.byKey[key]; ok {
			removed = append(removed, item.act)
		}
		a.removeItem(key)
	}
	return removed
}

// Peek returns the highest-priority activation without removing it.
func (a *Agenda) Peek() (activation.Activation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.h.Len() == 0 {
		return activation.Activation{}, false
	}
	return a.h.items[0].act, true
}

// Pop removes and returns the highest-priority activation.
func (a *Agenda) Pop() (activation.Activation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.h.Len() == 0 {
		return activation.Activation{}, false
	}
	item := heap.Pop(a.h).(*heapItem)
	delete(a.byKey, item.act.Key())
	return item.act, true
}

// Size returns the number of activations currently on the agenda.
func (a *Agenda) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.h.Len()
}

// Recent returns activations added since the most recent ClearRecent call.
func (a *Agenda) Recent() []activation.Activation {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]activation.Activation, len(a.recent))
	copy(out, a.recent)
	return out
}

// ClearRecent resets the recency-tracking buffer.
func (a *Agenda) ClearRecent() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recent = nil
}

// Snapshot returns every activation currently on the agenda, unordered.
func (a *Agenda) Snapshot() []activation.Activation {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]activation.Activation, 0, a.h.Len())
	for _, item := range a.h.items {
		out = append(out, item.act)
	}
	return out
}

// Clear empties the agenda.
func (a *Agenda) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := &activationHeap{policy: a.policy}
	heap.Init(h)
	a.h = h
	a.byKey = make(map[activation.RefractionKey]*heapItem)
	a.recent = nil
}

type heapItem struct {
	act   activation.Activation
	index int
}

type activationHeap struct {
	policy Policy
	items  []*heapItem
}

func (h *activationHeap) Len() int { return len(h.items) }

func (h *activationHeap) Less(i, j int) bool {
	return h.policy.Before(h.items[i].act, h.items[j].act)
}

func (h *activationHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *activationHeap) Push(x any) {
	item := x.(*heapItem)
	item.index = len(h.items)
	h.items = append(h.items, item)
}

func (h *activationHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return item
}
