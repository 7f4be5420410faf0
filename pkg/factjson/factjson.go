// Package factjson extracts values out of a fact attribute that arrives as
// opaque JSON rather than a pre-decoded Go value — a nested payload fetched
// from an external feed and stored unparsed, or a raw request body handed to
// the HTTP front-end. It mirrors the teacher stack's datafeeds.go use of
// gjson.GetBytes to pull a single field out of a response body without
// paying for a full json.Unmarshal.
package factjson

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Get extracts the value at path within raw, gjson path syntax (dotted
// field access, array indices, "#" length/selectors). Returns false when
// raw is not valid JSON or the path does not resolve.
func Get(raw []byte, path string) (any, bool) {
	if !gjson.ValidBytes(raw) {
		return nil, false
	}
	r := gjson.GetBytes(raw, path)
	if !r.Exists() {
		return nil, false
	}
	return r.Value(), true
}

// AsRaw coerces an attribute value into the []byte gjson expects: a
// json.RawMessage, []byte or string are used as-is, anything else is
// re-marshaled.
func AsRaw(v any) ([]byte, bool) {
	switch t := v.(type) {
	case json.RawMessage:
		return t, true
	case []byte:
		return t, true
	case string:
		return []byte(t), true
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		return b, true
	}
}
