package tracer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reteforge/engine/domain/fact"
)

func fixedNow() time.Time { return time.Unix(0, 0).UTC() }

func TestTracerRingBufferDropsOldest(t *testing.T) {
	tr := New(Options{MaxEvents: 2, Now: fixedNow})
	tr.Assert(fact.Fact{ID: "1", Type: "t"})
	tr.Assert(fact.Fact{ID: "2", Type: "t"})
	tr.Assert(fact.Fact{ID: "3", Type: "t"})

	events := tr.Events()
	require.Len(t, events, 2)
	assert.Equal(t, fact.ID("2"), events[0].Data["fact_id"])
	assert.Equal(t, fact.ID("3"), events[1].Data["fact_id"])
}

func TestTracerDisabledRecordsNothing(t *testing.T) {
	tr := Disabled()
	tr.Assert(fact.Fact{ID: "1", Type: "t"})
	assert.Empty(t, tr.Events())
}

func TestTracerSubscriberReceivesEvents(t *testing.T) {
	tr := New(Options{MaxEvents: 10, Now: fixedNow})
	var received []Event
	tr.Subscribe("s1", func(ev Event) { received = append(received, ev) })

	tr.Assert(fact.Fact{ID: "1", Type: "t"})

	require.Len(t, received, 1)
	assert.Equal(t, KindAssert, received[0].Kind)
}

func TestTracerSubscriberPanicIsolated(t *testing.T) {
	tr := New(Options{MaxEvents: 10, Now: fixedNow})
	var secondCalled bool
	tr.Subscribe("bad", func(Event) { panic("boom") })
	tr.Subscribe("good", func(Event) { secondCalled = true })

	assert.NotPanics(t, func() {
		tr.Assert(fact.Fact{ID: "1", Type: "t"})
	})
	assert.True(t, secondCalled)
}

func TestTracerUnsubscribe(t *testing.T) {
	tr := New(Options{MaxEvents: 10, Now: fixedNow})
	calls := 0
	tr.Subscribe("s1", func(Event) { calls++ })
	tr.Unsubscribe("s1")

	tr.Assert(fact.Fact{ID: "1", Type: "t"})

	assert.Equal(t, 0, calls)
}

func TestTracerResetClearsBuffer(t *testing.T) {
	tr := New(Options{MaxEvents: 10, Now: fixedNow})
	tr.Assert(fact.Fact{ID: "1", Type: "t"})
	require.Len(t, tr.Events(), 1)

	tr.Reset()

	assert.Empty(t, tr.Events())
}
