// Package refraction implements the pluggable policies that prevent an
// already-fired (production, token-signature) pair from refiring.
package refraction

import (
	"sync"
	"time"

	"github.com/reteforge/engine/domain/activation"
)

// Options configures a refraction store. Only fields relevant to the
// active policy are consulted.
type Options struct {
	TTLSeconds int
}

// Store is policy-specific opaque refraction state for a single engine
// instance.
type Store interface {
	// WouldRefract reports whether key is currently refracted, without
	// mutating the store. It is consulted twice per fire attempt: once as
	// a cheap pre-check when building activations (to avoid adding agenda
	// entries that would immediately refract) and once after peek/pop from
	// the agenda, before the action executor runs, to decide whether to
	// fire at all.
	WouldRefract(key activation.RefractionKey, now time.Time, opts Options) bool
	// Record mutates the store to mark key as fired at now. Per the spec's
	// invariant that "an activation appears in the refraction store only
	// after its actions have executed to completion," callers must invoke
	// Record only after the action executor has run the activation's full
	// action list, never before.
	Record(key activation.RefractionKey, now time.Time, opts Options)
	// Cleanup removes policy-specific expired entries (a no-op for
	// policies without expiry).
	Cleanup(now time.Time, opts Options)
	// Reset clears all state (invoked by the engine's reset command).
	Reset()
	// Snapshot returns a policy-specific, data-only representation for
	// the engine's snapshot command.
	Snapshot() any
}

// Policy constructs a fresh Store for one engine instance.
type Policy interface {
	Name() string
	NewStore() Store
}

// Built-in policy tags.
const (
	TagDefault = "default"
	TagPerRule = "per_rule"
	TagTTL     = "ttl"
	TagNone    = "none"
)

type defaultPolicy struct{}

func (defaultPolicy) Name() string  { return TagDefault }
func (defaultPolicy) NewStore() Store { return &setStore{fired: make(map[activation.RefractionKey]struct{})} }

type setStore struct {
	mu    sync.Mutex
	fired map[activation.RefractionKey]struct{}
}

func (s *setStore) WouldRefract(key activation.RefractionKey, now time.Time, opts Options) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fired[key]
	return ok
}

func (s *setStore) Record(key activation.RefractionKey, now time.Time, opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired[key] = struct{}{}
}

func (s *setStore) Cleanup(now time.Time, opts Options) {}

func (s *setStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired = make(map[activation.RefractionKey]struct{})
}

func (s *setStore) Snapshot() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]activation.RefractionKey, 0, len(s.fired))
	for k := range s.fired {
		out = append(out, k)
	}
	return out
}

type perRulePolicy struct{}

func (perRulePolicy) Name() string  { return TagPerRule }
func (perRulePolicy) NewStore() Store {
	return &perRuleStore{fired: make(map[string]struct{})}
}

type perRuleStore struct {
	mu    sync.Mutex
	fired map[string]struct{}
}

func (s *perRuleStore) WouldRefract(key activation.RefractionKey, now time.Time, opts Options) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fired[key.ProductionID]
	return ok
}

func (s *perRuleStore) Record(key activation.RefractionKey, now time.Time, opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired[key.ProductionID] = struct{}{}
}

func (s *perRuleStore) Cleanup(now time.Time, opts Options) {}

func (s *perRuleStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired = make(map[string]struct{})
}

func (s *perRuleStore) Snapshot() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.fired))
	for k := range s.fired {
		out = append(out, k)
	}
	return out
}

type ttlPolicy struct{}

func (ttlPolicy) Name() string  { return TagTTL }
func (ttlPolicy) NewStore() Store {
	return &ttlStore{firedAt: make(map[activation.RefractionKey]time.Time)}
}

type ttlStore struct {
	mu      sync.Mutex
	firedAt map[activation.RefractionKey]time.Time
}

func (s *ttlStore) withinTTL(t time.Time, now time.Time, opts Options) bool {
	if opts.TTLSeconds <= 0 {
		return false
	}
	return now.Sub(t) < time.Duration(opts.TTLSeconds)*time.Second
}

func (s *ttlStore) WouldRefract(key activation.RefractionKey, now time.Time, opts Options) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.firedAt[key]
	return ok && s.withinTTL(t, now, opts)
}

func (s *ttlStore) Record(key activation.RefractionKey, now time.Time, opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firedAt[key] = now
}

func (s *ttlStore) Cleanup(now time.Time, opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.firedAt {
		if !s.withinTTL(t, now, opts) {
			delete(s.firedAt, k)
		}
	}
}

func (s *ttlStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firedAt = make(map[activation.RefractionKey]time.Time)
}

func (s *ttlStore) Snapshot() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[activation.RefractionKey]time.Time, len(s.firedAt))
	for k, v := range s.firedAt {
		out[k] = v
	}
	return out
}

type nonePolicy struct{}

func (nonePolicy) Name() string    { return TagNone }
func (nonePolicy) NewStore() Store { return noneStore{} }

type noneStore struct{}

func (noneStore) WouldRefract(activation.RefractionKey, time.Time, Options) bool { return false }
func (noneStore) Record(activation.RefractionKey, time.Time, Options)           {}
func (noneStore) Cleanup(time.Time, Options)                                    {}
func (noneStore) Reset()                                                        {}
func (noneStore) Snapshot() any                                                 { return nil }

// Builtins returns the four required built-in policies keyed by tag.
func Builtins() map[string]Policy {
	return map[string]Policy{
		TagDefault: defaultPolicy{},
		TagPerRule: perRulePolicy{},
		TagTTL:     ttlPolicy{},
		TagNone:    nonePolicy{},
	}
}
