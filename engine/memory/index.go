package memory

import "fmt"

// indexKey canonicalizes a fact/binding value into a comparable map key for
// the equality-join indexes. Scalars format unambiguously; composite values
// fall back to Go's %v representation, which is sufficient for the
// homogeneous lists the data model allows.
func indexKey(v any) string {
	return fmt.Sprintf("%T:%v", v, v)
}
