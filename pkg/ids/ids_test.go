package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFactIDIsUniqueAndNonEmpty(t *testing.T) {
	a := NewFactID()
	b := NewFactID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestNewCorrelationIDIsUniqueAndNonEmpty(t *testing.T) {
	a := NewCorrelationID()
	b := NewCorrelationID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
