package rete

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reteforge/engine/domain/fact"
	"github.com/reteforge/engine/domain/network"
	"github.com/reteforge/engine/engine/agenda"
	"github.com/reteforge/engine/engine/memory"
	"github.com/reteforge/engine/engine/refraction"
	"github.com/reteforge/engine/registry/predicate"
)

func newTestContext(t *testing.T, net *network.Network) *Context {
	t.Helper()
	return &Context{
		Net:        net,
		WM:         memory.New(net),
		Agenda:     agenda.New(agenda.Builtins()[agenda.TagDefault]),
		Refraction: refraction.Builtins()[refraction.TagDefault].NewStore(),
		Predicates: predicate.New(),
		Seq:        &Sequencer{},
		Now:        func() time.Time { return time.Unix(0, 0).UTC() },
	}
}

// singlePatternNetwork builds one alpha node feeding one production
// directly, with no joins: the base case from spec scenario 1.
func singlePatternNetwork(t *testing.T) *network.Network {
	t.Helper()
	net, err := network.Build(network.IR{
		Rules: []string{"high_temp"},
		AlphaNodes: []network.AlphaNode{
			{
				ID:       "a1",
				FactType: "sensor_reading",
				Tests:    []network.Test{{Field: "value", Op: predicate.OpGt, Value: int64(100)}},
				Bindings: []network.Binding{{Name: "S", Field: "id"}},
				Children: []network.NodeID{"p1"},
			},
		},
		Productions: []network.ProductionNode{
			{ID: "p1", ProductionID: "high_temp", Salience: 0},
		},
	})
	require.NoError(t, err)
	return net
}

func TestPropagateAssertSinglePatternFires(t *testing.T) {
	net := singlePatternNetwork(t)
	c := newTestContext(t, net)

	require.NoError(t, PropagateAssert(c, fact.Fact{ID: "r1", Type: "sensor_reading", Attributes: map[string]any{"id": "sensor-1", "value": int64(150)}}))

	assert.Equal(t, 1, c.Agenda.Size())
	act, ok := c.Agenda.Peek()
	require.True(t, ok)
	assert.Equal(t, "high_temp", act.ProductionID)
	assert.Equal(t, "sensor-1", act.Token.Bindings["S"])
}

func TestPropagateAssertBelowThresholdDoesNotFire(t *testing.T) {
	net := singlePatternNetwork(t)
	c := newTestContext(t, net)

	require.NoError(t, PropagateAssert(c, fact.Fact{ID: "r1", Type: "sensor_reading", Attributes: map[string]any{"id": "sensor-1", "value": int64(50)}}))

	assert.Equal(t, 0, c.Agenda.Size())
}

// joinNetwork builds the employee/manager join from spec scenario 4: an
// employee pattern (left) joined against an executive-manager pattern
// (right) on manager_id == id.
func joinNetwork(t *testing.T) *network.Network {
	t.Helper()
	net, err := network.Build(network.IR{
		Rules: []string{"reports_to_exec"},
		AlphaNodes: []network.AlphaNode{
			{
				ID:       "emp",
				FactType: "employee",
				Bindings: []network.Binding{{Name: "E", Field: "id"}, {Name: "manager_id", Field: "manager_id"}},
				Children: []network.NodeID{"join1"},
			},
			{
				ID:       "mgr",
				FactType: "employee",
				Tests:    []network.Test{{Field: "tier", Op: predicate.OpEq, Value: "exec"}},
				Bindings: []network.Binding{{Name: "manager_id", Field: "id"}},
			},
		},
		BetaNodes: []network.BetaNode{
			{
				ID:       "join1",
				Left:     "emp",
				Right:    "mgr",
				JoinKeys: []string{"manager_id"},
				Bindings: []network.Binding{{Name: "M", Field: "id"}},
				Children: []network.NodeID{"p1"},
			},
		},
		Productions: []network.ProductionNode{
			{ID: "p1", ProductionID: "reports_to_exec", Salience: 0},
		},
	})
	require.NoError(t, err)
	return net
}

func TestJoinFiresWhenEmployeeAssertedAfterManager(t *testing.T) {
	net := joinNetwork(t)
	c := newTestContext(t, net)

	m1 := fact.Fact{ID: "m1", Type: "employee", Attributes: map[string]any{"id": "m1", "tier": "exec"}}
	require.NoError(t, c.WM.Insert(m1))
	require.NoError(t, PropagateAssert(c, m1))
	assert.Equal(t, 0, c.Agenda.Size(), "manager alone has no join partner yet")

	e1 := fact.Fact{ID: "e1", Type: "employee", Attributes: map[string]any{"id": "e1", "manager_id": "m1"}}
	require.NoError(t, c.WM.Insert(e1))
	require.NoError(t, PropagateAssert(c, e1))

	require.Equal(t, 1, c.Agenda.Size())
	act, ok := c.Agenda.Peek()
	require.True(t, ok)
	assert.Equal(t, "reports_to_exec", act.ProductionID)
	assert.Equal(t, "m1", act.Token.Bindings["M"])
	assert.ElementsMatch(t, []fact.ID{"e1", "m1"}, act.Token.FactIDs)
}

func TestJoinFiresWhenManagerAssertedAfterEmployee(t *testing.T) {
	net := joinNetwork(t)
	c := newTestContext(t, net)

	e1 := fact.Fact{ID: "e1", Type: "employee", Attributes: map[string]any{"id": "e1", "manager_id": "m1"}}
	require.NoError(t, c.WM.Insert(e1))
	require.NoError(t, PropagateAssert(c, e1))
	assert.Equal(t, 0, c.Agenda.Size())

	m1 := fact.Fact{ID: "m1", Type: "employee", Attributes: map[string]any{"id": "m1", "tier": "exec"}}
	require.NoError(t, c.WM.Insert(m1))
	require.NoError(t, PropagateAssert(c, m1))

	require.Equal(t, 1, c.Agenda.Size())
}

func TestJoinDoesNotFireForNonExecManager(t *testing.T) {
	net := joinNetwork(t)
	c := newTestContext(t, net)

	m1 := fact.Fact{ID: "m1", Type: "employee", Attributes: map[string]any{"id": "m1", "tier": "junior"}}
	require.NoError(t, c.WM.Insert(m1))
	require.NoError(t, PropagateAssert(c, m1))

	e1 := fact.Fact{ID: "e1", Type: "employee", Attributes: map[string]any{"id": "e1", "manager_id": "m1"}}
	require.NoError(t, c.WM.Insert(e1))
	require.NoError(t, PropagateAssert(c, e1))

	assert.Equal(t, 0, c.Agenda.Size())
}

func TestPropagateRetractRemovesActivation(t *testing.T) {
	net := joinNetwork(t)
	c := newTestContext(t, net)

	m1 := fact.Fact{ID: "m1", Type: "employee", Attributes: map[string]any{"id": "m1", "tier": "exec"}}
	e1 := fact.Fact{ID: "e1", Type: "employee", Attributes: map[string]any{"id": "e1", "manager_id": "m1"}}
	require.NoError(t, c.WM.Insert(m1))
	require.NoError(t, c.WM.Insert(e1))
	require.NoError(t, PropagateAssert(c, m1))
	require.NoError(t, PropagateAssert(c, e1))
	require.Equal(t, 1, c.Agenda.Size())

	PropagateRetract(c, m1)

	assert.Equal(t, 0, c.Agenda.Size())
	assert.False(t, c.WM.BetaMemory("join1").Size() > 0)
}

func TestPropagateRetractClearsAlphaMemory(t *testing.T) {
	net := singlePatternNetwork(t)
	c := newTestContext(t, net)

	r1 := fact.Fact{ID: "r1", Type: "sensor_reading", Attributes: map[string]any{"id": "sensor-1", "value": int64(150)}}
	require.NoError(t, PropagateAssert(c, r1))
	require.True(t, c.WM.AlphaMemory("a1").Contains("r1"))

	PropagateRetract(c, r1)

	assert.False(t, c.WM.AlphaMemory("a1").Contains("r1"))
	assert.Equal(t, 0, c.Agenda.Size())
}
