package activation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/reteforge/engine/domain/token"
)

func TestNewDefaultsSpecificityToTokenLength(t *testing.T) {
	tok := token.New(map[string]any{"E": "e1"}, "e1", "m1")
	act := New("overtime", tok, 10, time.Unix(0, 0), 1, nil)

	assert.Equal(t, 2, act.Specificity)
	assert.Equal(t, "overtime", act.ProductionID)
	assert.Equal(t, 10, act.Salience)
}

func TestKeyIsInsensitiveToFactIDOrder(t *testing.T) {
	a := New("overtime", token.New(map[string]any{}, "e1", "m1"), 0, time.Unix(0, 0), 1, nil)
	b := New("overtime", token.New(map[string]any{}, "m1", "e1"), 0, time.Unix(0, 0), 2, nil)

	assert.Equal(t, a.Key(), b.Key())
}

func TestToSummaryProjectsFactIDsAsStrings(t *testing.T) {
	tok := token.New(map[string]any{"E": "e1"}, "e1", "m1")
	act := New("overtime", tok, 5, time.Unix(0, 0), 1, nil)

	summary := ToSummary(act)
	assert.Equal(t, "overtime", summary.ProductionID)
	assert.ElementsMatch(t, []string{"e1", "m1"}, summary.FactIDs)
	assert.Equal(t, 5, summary.Salience)
	assert.Equal(t, 2, summary.Specificity)
}
