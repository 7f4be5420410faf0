package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reteforge/engine/domain/fact"
	"github.com/reteforge/engine/domain/network"
	"github.com/reteforge/engine/engine/memmgr"
	"github.com/reteforge/engine/engine/tracer"
	engineerrors "github.com/reteforge/engine/infrastructure/errors"
	"github.com/reteforge/engine/registry/predicate"
)

func fixedClock() time.Time { return time.Unix(0, 0).UTC() }

// thresholdNetwork builds spec scenario 1/2/5's overtime rule (and,
// optionally, the notified rule chained off its emitted fact).
func thresholdNetwork(t *testing.T, withNotifiedRule bool) *network.Network {
	t.Helper()
	ir := network.IR{
		Rules: []string{"overtime"},
		AlphaNodes: []network.AlphaNode{
			{
				ID:       "a_employee",
				FactType: "Employee",
				Tests:    []network.Test{{Field: "hours", Op: predicate.OpGt, Value: int64(40)}},
				Bindings: []network.Binding{{Name: "E", Field: "id"}, {Name: "H", Field: "hours"}},
				Children: []network.NodeID{"p_overtime"},
			},
		},
		Productions: []network.ProductionNode{
			{
				ID:           "p_overtime",
				ProductionID: "overtime",
				Salience:     0,
				Actions: []network.Action{
					{
						Kind:     network.ActionEmit,
						FactType: "Overtime",
						Template: map[string]any{
							"employee_id": map[string]any{"binding": "E"},
							"hours":       map[string]any{"calc": "sub", "args": []any{map[string]any{"binding": "H"}, int64(40)}},
						},
					},
				},
			},
		},
	}
	if withNotifiedRule {
		ir.Rules = append(ir.Rules, "notified")
		ir.AlphaNodes = append(ir.AlphaNodes, network.AlphaNode{
			ID:       "a_overtime",
			FactType: "Overtime",
			Bindings: []network.Binding{{Name: "E", Field: "employee_id"}},
			Children: []network.NodeID{"p_notified"},
		})
		ir.Productions = append(ir.Productions, network.ProductionNode{
			ID:           "p_notified",
			ProductionID: "notified",
			Salience:     0,
			Actions: []network.Action{
				{Kind: network.ActionEmit, FactType: "Notified", Template: map[string]any{"employee_id": map[string]any{"binding": "E"}}},
			},
		})
	}
	net, err := network.Build(ir)
	require.NoError(t, err)
	return net
}

func newTestEngine(t *testing.T, net *network.Network, opts ...func(*Config)) *Engine {
	t.Helper()
	cfg := Config{Net: net, Now: fixedClock}
	for _, o := range opts {
		o(&cfg)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

// Scenario 1: threshold rule.
func TestScenarioThresholdRuleFiresOnce(t *testing.T) {
	e := newTestEngine(t, thresholdNetwork(t, false))
	ctx := context.Background()

	_, err := e.Assert(ctx, []fact.Fact{{ID: "e1", Type: "Employee", Attributes: map[string]any{"id": "e1", "hours": int64(45)}}}, AssertOptions{Batch: true})
	require.NoError(t, err)

	out, err := e.Run(ctx, RunOptions{FireLimit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Fired)
	require.Len(t, out.Derived, 1)
	assert.Equal(t, "Overtime", out.Derived[0].Type)
	assert.Equal(t, "e1", out.Derived[0].Attributes["employee_id"])
	assert.Equal(t, float64(5), out.Derived[0].Attributes["hours"])

	out2, err := e.Run(ctx, RunOptions{FireLimit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, out2.Fired, "default refraction prevents a second fire")
}

// Scenario 2: retract cancels activation.
func TestScenarioRetractCancelsActivation(t *testing.T) {
	e := newTestEngine(t, thresholdNetwork(t, false))
	ctx := context.Background()

	_, err := e.Assert(ctx, []fact.Fact{{ID: "e2", Type: "Employee", Attributes: map[string]any{"id": "e2", "hours": int64(50)}}}, AssertOptions{Batch: true})
	require.NoError(t, err)

	_, err = e.Retract(ctx, []fact.ID{"e2"})
	require.NoError(t, err)

	out, err := e.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Fired)
	assert.Empty(t, out.Derived)
}

// Scenario 3: salience ordering.
func TestScenarioSalienceOrdering(t *testing.T) {
	net, err := network.Build(network.IR{
		Rules: []string{"p1", "p2"},
		AlphaNodes: []network.AlphaNode{
			{ID: "a1", FactType: "Employee", Bindings: []network.Binding{{Name: "E", Field: "id"}}, Children: []network.NodeID{"p1", "p2"}},
		},
		Productions: []network.ProductionNode{
			{ID: "p1", ProductionID: "p1", Salience: 10, Actions: []network.Action{{Kind: network.ActionLog, Level: "info", Message: "p1 fired"}}},
			{ID: "p2", ProductionID: "p2", Salience: 20, Actions: []network.Action{{Kind: network.ActionLog, Level: "info", Message: "p2 fired"}}},
		},
	})
	require.NoError(t, err)

	var fireOrder []string
	tr := tracer.New(tracer.Options{MaxEvents: 10, Now: fixedClock})
	tr.Subscribe("order", func(ev tracer.Event) {
		if ev.Kind == tracer.KindFire {
			fireOrder = append(fireOrder, ev.ProductionID)
		}
	})
	e := newTestEngine(t, net, func(c *Config) { c.Tracer = tr })
	ctx := context.Background()

	_, err = e.Assert(ctx, []fact.Fact{{ID: "e1", Type: "Employee", Attributes: map[string]any{"id": "e1"}}}, AssertOptions{Batch: true})
	require.NoError(t, err)

	_, err = e.Run(ctx, RunOptions{FireLimit: 10})
	require.NoError(t, err)

	assert.Equal(t, []string{"p2", "p1"}, fireOrder, "higher salience fires first under the default policy")
}

// Scenario 4: join.
func TestScenarioJoin(t *testing.T) {
	net, err := network.Build(network.IR{
		Rules: []string{"reports_to_exec"},
		AlphaNodes: []network.AlphaNode{
			{ID: "emp", FactType: "Employee", Bindings: []network.Binding{{Name: "E", Field: "id"}, {Name: "M", Field: "manager_id"}}, Children: []network.NodeID{"join1"}},
			{ID: "mgr", FactType: "Employee", Tests: []network.Test{{Field: "tier", Op: predicate.OpEq, Value: "exec"}}, Bindings: []network.Binding{{Name: "M", Field: "id"}}},
		},
		BetaNodes: []network.BetaNode{
			{ID: "join1", Left: "emp", Right: "mgr", JoinKeys: []string{"M"}, Bindings: []network.Binding{{Name: "M", Field: "id"}}, Children: []network.NodeID{"p1"}},
		},
		Productions: []network.ProductionNode{{ID: "p1", ProductionID: "reports_to_exec"}},
	})
	require.NoError(t, err)
	e := newTestEngine(t, net)
	ctx := context.Background()

	_, err = e.Assert(ctx, []fact.Fact{{ID: "m1", Type: "Employee", Attributes: map[string]any{"id": "m1", "tier": "exec"}}}, AssertOptions{Batch: true})
	require.NoError(t, err)
	out, err := e.Assert(ctx, []fact.Fact{{ID: "e1", Type: "Employee", Attributes: map[string]any{"id": "e1", "manager_id": "m1"}}}, AssertOptions{Batch: true})
	require.NoError(t, err)

	require.Len(t, out.Activations, 1)
	assert.ElementsMatch(t, []string{"e1", "m1"}, out.Activations[0].FactIDs)
}

// Scenario 5: refraction across emission cycles.
func TestScenarioRefractionAcrossEmissionCycles(t *testing.T) {
	e := newTestEngine(t, thresholdNetwork(t, true))
	ctx := context.Background()

	_, err := e.Assert(ctx, []fact.Fact{{ID: "e1", Type: "Employee", Attributes: map[string]any{"id": "e1", "hours": int64(45)}}}, AssertOptions{Batch: true})
	require.NoError(t, err)

	out, err := e.Run(ctx, RunOptions{FireLimit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Fired, "overtime rule then notified rule")

	out2, err := e.Run(ctx, RunOptions{FireLimit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, out2.Fired)
}

// Scenario 6: memory eviction.
func TestScenarioMemoryEviction(t *testing.T) {
	net, err := network.Build(network.IR{
		AlphaNodes: []network.AlphaNode{{ID: "a1", FactType: "Reading"}},
	})
	require.NoError(t, err)
	e := newTestEngine(t, net, func(c *Config) {
		c.Memory = memmgr.Options{LimitBytes: 2000, CheckInterval: 1, Policy: memmgr.PolicyLRU}
	})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		id := fact.ID(fmt.Sprintf("r%d", i))
		_, err := e.Assert(ctx, []fact.Fact{{ID: id, Type: "Reading", Attributes: map[string]any{"v": i}}}, AssertOptions{Batch: true})
		require.NoError(t, err)
	}

	snap := e.Snapshot(ctx)
	assert.Less(t, len(snap.Facts), 100)
}

func TestResetClearsState(t *testing.T) {
	e := newTestEngine(t, thresholdNetwork(t, false))
	ctx := context.Background()

	_, err := e.Assert(ctx, []fact.Fact{{ID: "e1", Type: "Employee", Attributes: map[string]any{"id": "e1", "hours": int64(45)}}}, AssertOptions{Batch: true})
	require.NoError(t, err)
	require.Equal(t, 1, e.ag.Size())

	e.Reset(ctx)

	assert.Equal(t, 0, e.ag.Size())
	assert.Equal(t, 0, e.wm.Size())
}

func TestAssertRejectsInvalidFact(t *testing.T) {
	e := newTestEngine(t, thresholdNetwork(t, false))
	_, err := e.Assert(context.Background(), []fact.Fact{{ID: "", Type: ""}}, AssertOptions{Batch: true})
	assert.Error(t, err)
}

func TestAssertNonBatchFiresImmediately(t *testing.T) {
	e := newTestEngine(t, thresholdNetwork(t, false))
	out, err := e.Assert(context.Background(), []fact.Fact{{ID: "e1", Type: "Employee", Attributes: map[string]any{"id": "e1", "hours": int64(45)}}}, AssertOptions{Batch: false})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Fired)
}

func TestStepReportsAgendaEmpty(t *testing.T) {
	e := newTestEngine(t, thresholdNetwork(t, false))
	_, err := e.Step(context.Background())
	assert.True(t, engineerrors.IsCode(err, engineerrors.CodeAgendaEmpty))
}
