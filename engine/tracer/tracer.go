// Package tracer implements the engine's optional structured event
// recorder: a bounded ring buffer of typed events with synchronous,
// failure-isolated subscriber dispatch.
package tracer

import (
	"sync"
	"time"

	"github.com/reteforge/engine/domain/activation"
	"github.com/reteforge/engine/domain/fact"
	"github.com/reteforge/engine/domain/network"
	"github.com/reteforge/engine/domain/token"
	"github.com/reteforge/engine/infrastructure/logging"
	"github.com/reteforge/engine/pkg/ids"
)

// Kind enumerates the closed set of trace event kinds, per spec section 4.8.
type Kind string

const (
	KindAssert     Kind = "assert"
	KindRetract    Kind = "retract"
	KindAlphaMatch Kind = "alpha_match"
	KindBetaJoin   Kind = "beta_join"
	KindActivation Kind = "activation"
	KindFire       Kind = "fire"
	KindDerive     Kind = "derive"
	KindRefraction Kind = "refraction"
	KindError      Kind = "error"
)

// Event is one recorded occurrence.
type Event struct {
	Kind          Kind
	Timestamp     time.Time
	NodeID        network.NodeID
	ProductionID  string
	Data          map[string]any
	CorrelationID string
}

// Subscriber receives every recorded event synchronously.
type Subscriber func(Event)

// Tracer is a bounded ring buffer of events plus a set of registered
// subscribers. A nil *Tracer is not valid; use Disabled() to obtain a
// no-op tracer when tracing is turned off for a tenant.
type Tracer struct {
	mu          sync.Mutex
	enabled     bool
	maxEvents   int
	events      []Event
	nextIdx     int
	subscribers map[string]Subscriber
	logger      *logging.Logger
	now         func() time.Time
}

// Options configures a Tracer.
type Options struct {
	MaxEvents int
	Logger    *logging.Logger
	Now       func() time.Time
}

// New constructs an enabled Tracer bounded to opts.MaxEvents events
// (default 1000 if unset).
func New(opts Options) *Tracer {
	max := opts.MaxEvents
	if max <= 0 {
		max = 1000
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Tracer{
		enabled:     true,
		maxEvents:   max,
		subscribers: make(map[string]Subscriber),
		logger:      opts.Logger,
		now:         now,
	}
}

// Disabled returns a Tracer that records nothing and dispatches to no
// subscribers, for tenants configured without tracing.
func Disabled() *Tracer {
	return &Tracer{enabled: false, subscribers: make(map[string]Subscriber)}
}

// Subscribe registers fn under id, replacing any existing subscriber with
// the same id.
func (t *Tracer) Subscribe(id string, fn Subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers[id] = fn
}

// Unsubscribe removes the subscriber registered under id.
func (t *Tracer) Unsubscribe(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribers, id)
}

// record appends ev to the ring buffer (dropping the oldest on overflow)
// and dispatches it to every subscriber, isolating panics so one failing
// subscriber cannot corrupt engine state or block the others.
func (t *Tracer) record(ev Event) {
	if !t.enabled {
		return
	}

	t.mu.Lock()
	if len(t.events) < t.maxEvents {
		t.events = append(t.events, ev)
	} else {
		t.events[t.nextIdx] = ev
		t.nextIdx = (t.nextIdx + 1) % t.maxEvents
	}
	subscribers := make([]Subscriber, 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		subscribers = append(subscribers, fn)
	}
	t.mu.Unlock()

	for _, fn := range subscribers {
		t.dispatch(fn, ev)
	}
}

func (t *Tracer) dispatch(fn Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil && t.logger != nil {
			t.logger.WithField("panic", r).Error("tracer subscriber panicked")
		}
	}()
	fn(ev)
}

// Events returns a snapshot of currently buffered events in chronological
// order.
func (t *Tracer) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.events) < t.maxEvents {
		out := make([]Event, len(t.events))
		copy(out, t.events)
		return out
	}
	out := make([]Event, 0, t.maxEvents)
	out = append(out, t.events[t.nextIdx:]...)
	out = append(out, t.events[:t.nextIdx]...)
	return out
}

// Reset clears the buffer without removing subscribers.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
	t.nextIdx = 0
}

func (t *Tracer) correlationID() string {
	return ids.NewCorrelationID()
}

// Assert records a fact assertion.
func (t *Tracer) Assert(f fact.Fact) {
	t.record(Event{Kind: KindAssert, Timestamp: t.now(), Data: map[string]any{"fact_id": f.ID, "type": f.Type}, CorrelationID: t.correlationID()})
}

// Retract records a fact retraction.
func (t *Tracer) Retract(f fact.Fact) {
	t.record(Event{Kind: KindRetract, Timestamp: t.now(), Data: map[string]any{"fact_id": f.ID, "type": f.Type}, CorrelationID: t.correlationID()})
}

// AlphaMatch records an alpha-node test-chain success, satisfying the
// rete.Tracer interface so propagation can report through this type.
func (t *Tracer) AlphaMatch(alphaID network.NodeID, factID fact.ID) {
	t.record(Event{Kind: KindAlphaMatch, Timestamp: t.now(), NodeID: alphaID, Data: map[string]any{"fact_id": factID}})
}

// BetaJoin records a successful beta join, producing an extended token.
func (t *Tracer) BetaJoin(betaID network.NodeID, tok token.Token) {
	t.record(Event{Kind: KindBetaJoin, Timestamp: t.now(), NodeID: betaID, Data: map[string]any{"fact_ids": tok.FactIDs, "bindings": tok.Bindings}})
}

// Activation records an activation added to the agenda.
func (t *Tracer) Activation(act activation.Activation) {
	t.record(Event{Kind: KindActivation, Timestamp: t.now(), ProductionID: act.ProductionID, Data: map[string]any{"salience": act.Salience, "specificity": act.Specificity, "fact_ids": act.Token.FactIDs}})
}

// Fire records an activation firing.
func (t *Tracer) Fire(act activation.Activation) {
	t.record(Event{Kind: KindFire, Timestamp: t.now(), ProductionID: act.ProductionID, Data: map[string]any{"fact_ids": act.Token.FactIDs}})
}

// Derive records a derived fact emitted by a fired activation.
func (t *Tracer) Derive(f fact.Fact) {
	t.record(Event{Kind: KindDerive, Timestamp: t.now(), Data: map[string]any{"fact_id": f.ID, "type": f.Type}})
}

// Refraction records a refracted (skipped) activation.
func (t *Tracer) Refraction(key activation.RefractionKey) {
	t.record(Event{Kind: KindRefraction, Timestamp: t.now(), ProductionID: key.ProductionID, Data: map[string]any{"token_signature": key.TokenSig}})
}

// Error records an engine error surfaced during command processing.
func (t *Tracer) Error(source string, err error) {
	t.record(Event{Kind: KindError, Timestamp: t.now(), Data: map[string]any{"source": source, "error": err.Error()}})
}
