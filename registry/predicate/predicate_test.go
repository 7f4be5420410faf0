package predicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGreaterThanNumericCoercion(t *testing.T) {
	p, ok := New().Lookup(OpGt)
	require.True(t, ok)

	result, err := p.Evaluate(OpGt, int64(45), int64(40))
	require.NoError(t, err)
	assert.True(t, result)

	result, err = p.Evaluate(OpGt, int64(35), int64(40))
	require.NoError(t, err)
	assert.False(t, result)
}

func TestEqualityAcrossNumericTypes(t *testing.T) {
	p, ok := New().Lookup(OpEq)
	require.True(t, ok)

	result, err := p.Evaluate(OpEq, int64(40), float64(40))
	require.NoError(t, err)
	assert.True(t, result, "equality should not be sensitive to int64 vs float64 representation")
}

func TestInequality(t *testing.T) {
	p, ok := New().Lookup(OpNeq)
	require.True(t, ok)
	result, err := p.Evaluate(OpNeq, "exec", "junior")
	require.NoError(t, err)
	assert.True(t, result)
}

func TestMembership(t *testing.T) {
	p, ok := New().Lookup(OpIn)
	require.True(t, ok)

	result, err := p.Evaluate(OpIn, "exec", []any{"exec", "director"})
	require.NoError(t, err)
	assert.True(t, result)

	result, err = p.Evaluate(OpIn, "junior", []any{"exec", "director"})
	require.NoError(t, err)
	assert.False(t, result)
}

func TestOrderingRejectsIncomparableTypes(t *testing.T) {
	p, ok := New().Lookup(OpGt)
	require.True(t, ok)
	_, err := p.Evaluate(OpGt, true, false)
	assert.Error(t, err)
}

func TestScriptPredicate(t *testing.T) {
	p, err := NewScriptPredicate("l > r && r > 0", false, 0.5)
	require.NoError(t, err)

	result, err := p.Evaluate("custom", 10, 5)
	require.NoError(t, err)
	assert.True(t, result)

	result, err = p.Evaluate("custom", 10, -5)
	require.NoError(t, err)
	assert.False(t, result)
}

func TestRegistryLookupMissing(t *testing.T) {
	_, ok := New().Lookup("~~")
	assert.False(t, ok)
}
