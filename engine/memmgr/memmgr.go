// Package memmgr implements the engine's memory manager: periodic usage
// estimation against a configured byte limit, and eviction of working
// memory facts under a pluggable policy when that limit is exceeded.
package memmgr

import (
	"math/rand"
	"reflect"
	"sort"
	"time"

	"github.com/reteforge/engine/domain/fact"
	"github.com/reteforge/engine/engine/agenda"
	"github.com/reteforge/engine/engine/memory"
	"github.com/reteforge/engine/engine/refraction"
)

// Policy tags for eviction candidate selection.
const (
	PolicyLRU    = "lru"
	PolicyOldest = "oldest"
	PolicyRandom = "random"
)

// Options configures a Manager. A zero LimitBytes disables memory
// management entirely.
type Options struct {
	LimitBytes    int64
	CheckInterval int // operations between usage checks; default 1 (check every op)
	Policy        string
}

// Manager estimates working-memory usage and evicts facts under Options.Policy
// when Options.LimitBytes is exceeded.
type Manager struct {
	opts    Options
	sinceOp int
	rng     *rand.Rand
}

// New constructs a Manager. randSeed makes :random eviction deterministic
// in tests; pass 0 for a process-default source.
func New(opts Options, randSeed int64) *Manager {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 1
	}
	if opts.Policy == "" {
		opts.Policy = PolicyLRU
	}
	if randSeed == 0 {
		randSeed = time.Now().UnixNano()
	}
	src := rand.NewSource(randSeed)
	return &Manager{opts: opts, rng: rand.New(src)}
}

// Enabled reports whether a memory limit is configured.
func (m *Manager) Enabled() bool {
	return m.opts.LimitBytes > 0
}

// Tick advances the manager's operation counter and reports whether a
// usage check is due this operation.
func (m *Manager) Tick() bool {
	if !m.Enabled() {
		return false
	}
	m.sinceOp++
	if m.sinceOp >= m.opts.CheckInterval {
		m.sinceOp = 0
		return true
	}
	return false
}

// EstimateUsage sums working-memory, agenda, and refraction-store size
// estimates, matching spec section 4.6's usage formula.
func EstimateUsage(wm *memory.WorkingMemory, ag *agenda.Agenda, store refraction.Store) int64 {
	return estimateFacts(wm) + estimateAgenda(ag) + estimateRefraction(store)
}

// averageFactSize is the fixed per-fact overhead in bytes; estimateFacts
// adds roughly 32 bytes per attribute on top of it, in the absence of
// runtime memory accounting.
const averageFactSize int64 = 128

func estimateFacts(wm *memory.WorkingMemory) int64 {
	total := int64(0)
	for _, f := range wm.All() {
		total += averageFactSize + int64(len(f.Attributes))*32
	}
	return total
}

func estimateAgenda(ag *agenda.Agenda) int64 {
	return int64(ag.Size()) * 96
}

// estimateRefraction sizes a policy's opaque Snapshot() payload by its
// element count when it is a slice or map (every built-in policy's
// Snapshot returns one of those, or nil for :none).
func estimateRefraction(store refraction.Store) int64 {
	snap := store.Snapshot()
	if snap == nil {
		return 0
	}
	v := reflect.ValueOf(snap)
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return int64(v.Len()) * 48
	default:
		return 64
	}
}

// Check estimates current usage and, if it exceeds Options.LimitBytes,
// evicts facts from wm under Options.Policy via retract, calling
// retractFn for each evicted id (the caller's normal retract path, so
// RETE invariants are preserved). It returns the post-eviction usage
// estimate and whether the limit is still exceeded.
func (m *Manager) Check(wm *memory.WorkingMemory, ag *agenda.Agenda, store refraction.Store, retractFn func(fact.ID)) (usage int64, stillExceeded bool) {
	if !m.Enabled() {
		return 0, false
	}

	usage = EstimateUsage(wm, ag, store)
	if usage <= m.opts.LimitBytes {
		return usage, false
	}

	excess := usage - m.opts.LimitBytes
	count := int(excess / averageFactSize)
	if count < 1 {
		count = 1
	}
	maxEvictable := wm.Size() / 2
	if count > maxEvictable {
		count = maxEvictable
	}

	for _, id := range m.candidates(wm, count) {
		retractFn(id)
	}

	usage = EstimateUsage(wm, ag, store)
	return usage, usage > m.opts.LimitBytes
}

// candidates selects up to n fact ids to evict under the configured policy.
func (m *Manager) candidates(wm *memory.WorkingMemory, n int) []fact.ID {
	switch m.opts.Policy {
	case PolicyOldest:
		ids := wm.InsertionOrder()
		sorted := append([]fact.ID(nil), ids...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		return capIDs(sorted, n)
	case PolicyRandom:
		ids := wm.InsertionOrder()
		shuffled := append([]fact.ID(nil), ids...)
		m.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		return capIDs(shuffled, n)
	case PolicyLRU:
		fallthrough
	default:
		return capIDs(wm.InsertionOrder(), n)
	}
}

func capIDs(ids []fact.ID, n int) []fact.ID {
	if n >= len(ids) {
		return ids
	}
	return ids[:n]
}
