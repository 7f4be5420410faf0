package fact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFactValid(t *testing.T) {
	cases := []struct {
		name string
		f    Fact
		want bool
	}{
		{"valid", Fact{ID: "e1", Type: "Employee"}, true},
		{"missing id", Fact{Type: "Employee"}, false},
		{"missing type", Fact{ID: "e1"}, false},
		{"both missing", Fact{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.f.Valid())
		})
	}
}

func TestFactGet(t *testing.T) {
	f := Fact{ID: "e1", Type: "Employee", Attributes: map[string]Value{"hours": int64(45)}}
	v, ok := f.Get("hours")
	assert.True(t, ok)
	assert.Equal(t, int64(45), v)

	_, ok = f.Get("missing")
	assert.False(t, ok)
}

func TestFactGetNestedJSONPath(t *testing.T) {
	f := Fact{
		ID:   "oracle1",
		Type: "PriceFeed",
		Attributes: map[string]Value{
			"payload": []byte(`{"quote":{"price":42.5,"symbols":["BTC","ETH"]}}`),
		},
	}

	v, ok := f.Get("payload.quote.price")
	assert.True(t, ok)
	assert.Equal(t, 42.5, v)

	v, ok = f.Get("payload.quote.symbols.0")
	assert.True(t, ok)
	assert.Equal(t, "BTC", v)

	_, ok = f.Get("payload.quote.missing")
	assert.False(t, ok)

	_, ok = f.Get("missing.nested")
	assert.False(t, ok)
}

func TestFactCloneIsIndependent(t *testing.T) {
	f := Fact{ID: "e1", Type: "Employee", Attributes: map[string]Value{"hours": int64(45)}}
	clone := f.Clone()
	clone.Attributes["hours"] = int64(99)

	assert.Equal(t, int64(45), f.Attributes["hours"])
	assert.Equal(t, int64(99), clone.Attributes["hours"])
}
