package vitrine

// OpaqueRef marks a value to be stored and returned by identity: it is
// never wrapped, never traversed by the snapshot builder, never
// instrumented by the affected-path recorder, and never diffed
// recursively.  Reads through a Node or a snapshot yield the inner
// value itself.
type OpaqueRef struct {
	value interface{}
}

// Opaque marks v as opaque.  Marking an already-opaque value is a
// passthrough.  A wrapped *Node cannot be marked opaque; storing such a
// marker fails at the mutation call.
func Opaque(v interface{}) OpaqueRef {
	if r, ok := v.(OpaqueRef); ok {
		return r
	}
	return OpaqueRef{value: v}
}

// Value returns the marked value.
func (r OpaqueRef) Value() interface{} {
	return r.value
}
