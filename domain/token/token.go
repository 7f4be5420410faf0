// Package token implements the immutable partial-match record propagated
// through the beta network.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/reteforge/engine/domain/fact"
)

// Token is an immutable partial match: a binding environment plus the
// ordered list of fact ids (WMEs) that participated in producing it, plus a
// pre-computed canonical signature.
//
// Tokens are never mutated after construction; Extend returns a new Token.
type Token struct {
	Bindings  map[string]fact.Value
	FactIDs   []fact.ID
	signature string
}

// New constructs a root token (used at the entry of a beta network, before
// any joins have been applied) from bindings and the given fact ids.
func New(bindings map[string]fact.Value, factIDs ...fact.ID) Token {
	t := Token{
		Bindings: bindings,
		FactIDs:  append([]fact.ID(nil), factIDs...),
	}
	t.signature = computeSignature(t.FactIDs, t.Bindings)
	return t
}

// Extend returns a new token carrying this token's bindings plus
// newBindings (newBindings wins on key collision), and this token's fact id
// list plus id, appended in join order. The signature is recomputed over
// the full extended state.
func (t Token) Extend(newBindings map[string]fact.Value, id fact.ID) Token {
	merged := make(map[string]fact.Value, len(t.Bindings)+len(newBindings))
	for k, v := range t.Bindings {
		merged[k] = v
	}
	for k, v := range newBindings {
		merged[k] = v
	}
	ids := make([]fact.ID, len(t.FactIDs), len(t.FactIDs)+1)
	copy(ids, t.FactIDs)
	ids = append(ids, id)

	ext := Token{Bindings: merged, FactIDs: ids}
	ext.signature = computeSignature(ids, merged)
	return ext
}

// Signature returns the canonical, join-order-insensitive signature: a
// serialization of the sorted fact-id list and the sorted binding *names*
// (not values). Two tokens produced via different join orders over the
// same facts and binding names compare equal under Signature.
func (t Token) Signature() string {
	return t.signature
}

// Contains reports whether id participates in this token's partial match.
func (t Token) Contains(id fact.ID) bool {
	for _, existing := range t.FactIDs {
		if existing == id {
			return true
		}
	}
	return false
}

func computeSignature(ids []fact.ID, bindings map[string]fact.Value) string {
	sortedIDs := make([]string, len(ids))
	for i, id := range ids {
		sortedIDs[i] = string(id)
	}
	sort.Strings(sortedIDs)

	names := make([]string, 0, len(bindings))
	for k := range bindings {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(strings.Join(sortedIDs, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(names, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
