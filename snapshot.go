package vitrine

import "strconv"

// Map is an immutable snapshot of a map node.  Maps must never be
// mutated after creation; subtrees untouched by a mutation are shared
// by reference across snapshot generations, and two snapshots of the
// same node at the same version are the same reference.
type Map struct {
	keys []string
	vals map[string]interface{}
}

// Get returns the snapshot value under key.
func (m *Map) Get(key string) (interface{}, bool) {
	v, ok := m.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.vals[key]
	return ok
}

// Keys returns the keys in the order the node held them.
func (m *Map) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.keys)
}

// Range invokes f for every entry until f returns false.
func (m *Map) Range(f func(key string, v interface{}) bool) {
	for _, k := range m.keys {
		if !f(k, m.vals[k]) {
			return
		}
	}
}

// List is an immutable snapshot of a list node.
type List struct {
	items []interface{}
}

// At returns the snapshot value at index i.
func (l *List) At(i int) (interface{}, bool) {
	if i < 0 || i >= len(l.items) {
		return nil, false
	}
	return l.items[i], true
}

// Len returns the number of items.
func (l *List) Len() int {
	return len(l.items)
}

// Range invokes f for every item until f returns false.
func (l *List) Range(f func(i int, v interface{}) bool) {
	for i, v := range l.items {
		if !f(i, v) {
			return
		}
	}
}

// Snapshot returns the immutable snapshot of n at its current version:
// a *Map or *List tree of plain values.  The snapshot is cached against
// the node's version, so repeated calls with no intervening mutation
// return the identical reference, and rebuilding after a localized
// mutation reuses the cached snapshots of every unchanged subtree.
func (n *Node) Snapshot() interface{} {
	return n.buildSnapshot(map[*Node]interface{}{})
}

// buildSnapshot builds recursively, keeping in-progress results in
// building so that a node reachable from itself reuses the same
// partially-built reference instead of recursing forever.
func (n *Node) buildSnapshot(building map[*Node]interface{}) interface{} {
	if s, ok := building[n]; ok {
		return s
	}
	if n.snap != nil && n.snapVersion == n.version {
		return n.snap
	}
	var snap interface{}
	switch n.kind {
	case kindMap:
		m := &Map{
			keys: append([]string(nil), n.order...),
			vals: make(map[string]interface{}, len(n.entries)),
		}
		building[n] = m
		for _, k := range m.keys {
			m.vals[k] = n.snapshotValue(k, n.entries[k], building)
		}
		snap = m
	case kindList:
		l := &List{items: make([]interface{}, len(n.items))}
		building[n] = l
		for i, v := range n.items {
			l.items[i] = n.snapshotValue(strconv.Itoa(i), v, building)
		}
		snap = l
	}
	n.snap = snap
	n.snapVersion = n.version
	return snap
}

// snapshotValue resolves one stored value for a snapshot: nested nodes
// recurse (wrapping raw structures first, so their snapshots cache),
// Opaque values are installed by identity, primitives copy as-is.
func (n *Node) snapshotValue(key string, v interface{}, building map[*Node]interface{}) interface{} {
	switch t := v.(type) {
	case *Node:
		return t.buildSnapshot(building)
	case OpaqueRef:
		return t.value
	case map[string]interface{}, []interface{}:
		child := n.wrapChild(v)
		n.writeBack(key, child)
		return child.(*Node).buildSnapshot(building)
	default:
		return v
	}
}

// Value materializes a snapshot subtree into plain containers.  Shared
// and cyclic substructure is preserved.
func (m *Map) Value() map[string]interface{} {
	return materialize(m, map[interface{}]interface{}{}).(map[string]interface{})
}

// Value materializes a snapshot subtree into plain containers.
func (l *List) Value() []interface{} {
	return materialize(l, map[interface{}]interface{}{}).([]interface{})
}

func materialize(v interface{}, visited map[interface{}]interface{}) interface{} {
	switch t := v.(type) {
	case *Map:
		if out, ok := visited[t]; ok {
			return out
		}
		out := make(map[string]interface{}, len(t.keys))
		visited[t] = out
		for _, k := range t.keys {
			out[k] = materialize(t.vals[k], visited)
		}
		return out
	case *List:
		if out, ok := visited[t]; ok {
			return out
		}
		out := make([]interface{}, len(t.items))
		visited[t] = out
		for i, item := range t.items {
			out[i] = materialize(item, visited)
		}
		return out
	default:
		return v
	}
}
