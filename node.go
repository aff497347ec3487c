package vitrine

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

type nodeKind uint8

const (
	kindMap nodeKind = iota
	kindList
)

// Node is a wrapped state node: a mutable container (map or list) whose
// reads and writes are observed.  Nested plain containers stored in a
// Node are wrapped lazily, on first read or first snapshot, and the
// wrapping is idempotent: the same underlying container wraps to the
// same Node identity within one root.
//
// A Node is not safe for concurrent use; the engine assumes the
// single-threaded cooperative model of its callers.
type Node struct {
	kind    nodeKind
	entries map[string]interface{}
	order   []string
	items   []interface{}

	version uint64
	parent  *Node
	rt      *root

	// identity of the raw container this node was wrapped from, for
	// registry teardown; zero if the node was built empty.  raw pins the
	// container itself, so its address cannot be freed and reused while
	// the registry still keys on it.
	rawPtr uintptr
	raw    interface{}

	snap        interface{}
	snapVersion uint64

	subs []*subscription
}

// root holds the bookkeeping shared by every node under one Wrap()ed
// tree: the raw-container registry that makes wrapping idempotent, the
// notification scheduler, and the debug flag.
type root struct {
	reg   map[uintptr]*Node
	sched scheduler
	debug bool
}

// WrapOptions sets parameters for a wrapped root.
type WrapOptions struct {
	// Debug enables tracing of mutations and notification delivery.
	Debug bool
}

// Wrap constructs a reactive root around the given value, which must be
// a plain structure: map[string]interface{} or []interface{}.  Wrapping
// a *Node returns it unchanged.  A nil value wraps an empty map.
func Wrap(v interface{}, options *WrapOptions) (*Node, error) {
	if n, ok := v.(*Node); ok {
		return n, nil
	}
	if _, ok := v.(OpaqueRef); ok {
		return nil, fmt.Errorf("cannot wrap a value marked Opaque as a root")
	}
	rt := &root{reg: map[uintptr]*Node{}}
	if options != nil {
		rt.debug = options.Debug
	}
	switch t := v.(type) {
	case nil:
		return newMapNode(rt, nil), nil
	case map[string]interface{}:
		return wrapMap(rt, t), nil
	case []interface{}:
		return wrapList(rt, t), nil
	default:
		return nil, fmt.Errorf("cannot wrap value of type %T; want map[string]interface{} or []interface{}", v)
	}
}

// Version returns the current version of a wrapped node, or ok=false if
// the argument is not one.  Probing arbitrary values is legitimate and
// never an error.
func Version(v interface{}) (uint64, bool) {
	if n, ok := v.(*Node); ok && n != nil {
		return n.version, true
	}
	return 0, false
}

func newMapNode(rt *root, entries map[string]interface{}) *Node {
	n := &Node{
		kind:    kindMap,
		entries: map[string]interface{}{},
		version: 1,
		rt:      rt,
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.entries[k] = entries[k]
	}
	n.order = keys
	return n
}

func wrapMap(rt *root, m map[string]interface{}) *Node {
	ptr := reflect.ValueOf(m).Pointer()
	if ptr != 0 {
		if cached, ok := rt.reg[ptr]; ok {
			return cached
		}
	}
	n := newMapNode(rt, m)
	n.rawPtr = ptr
	if ptr != 0 {
		n.raw = m
		rt.reg[ptr] = n
	}
	return n
}

func wrapList(rt *root, l []interface{}) *Node {
	var ptr uintptr
	if len(l) > 0 {
		ptr = reflect.ValueOf(l).Pointer()
	}
	if ptr != 0 {
		if cached, ok := rt.reg[ptr]; ok {
			return cached
		}
	}
	n := &Node{
		kind:    kindList,
		items:   append([]interface{}{}, l...),
		version: 1,
		rt:      rt,
		rawPtr:  ptr,
	}
	if ptr != 0 {
		n.raw = l
		rt.reg[ptr] = n
	}
	return n
}

// wrapChild wraps a stored value if it is a plain structure, parenting
// the result under n.  Opaque and non-structural values pass through.
func (n *Node) wrapChild(v interface{}) interface{} {
	switch t := v.(type) {
	case *Node:
		t.attach(n)
		return t
	case OpaqueRef:
		return t
	case map[string]interface{}:
		child := wrapMap(n.rt, t)
		child.attach(n)
		return child
	case []interface{}:
		child := wrapList(n.rt, t)
		child.attach(n)
		return child
	default:
		return v
	}
}

// attach records n's single owner.  Moving a node under a different
// parent replaces the stale ancestor link; moving it under a parent in
// a different root re-homes the whole wrapped subtree.
func (n *Node) attach(parent *Node) {
	n.parent = parent
	if n.rt != parent.rt {
		n.rehome(parent.rt)
	}
}

func (n *Node) rehome(rt *root) {
	if n.rt == rt {
		return
	}
	if n.rawPtr != 0 {
		delete(n.rt.reg, n.rawPtr)
		rt.reg[n.rawPtr] = n
	}
	n.rt = rt
	for _, v := range n.entries {
		if child, ok := v.(*Node); ok {
			child.rehome(rt)
		}
	}
	for _, v := range n.items {
		if child, ok := v.(*Node); ok {
			child.rehome(rt)
		}
	}
}

func (n *Node) detachValue(v interface{}) {
	child, ok := v.(*Node)
	if !ok {
		return
	}
	if child.parent == n {
		child.parent = nil
	}
	if child.rawPtr != 0 {
		delete(n.rt.reg, child.rawPtr)
		child.rawPtr = 0
		child.raw = nil
	}
}

// bump increments the version of n and of every ancestor currently
// holding it, then lets the scheduler deliver notifications for the
// completed operation.  The ownership chain may contain a cycle; each
// node is bumped once.
func (n *Node) bump() {
	seen := map[*Node]struct{}{}
	var chain []*Node
	for a := n; a != nil; a = a.parent {
		if _, ok := seen[a]; ok {
			break
		}
		seen[a] = struct{}{}
		chain = append(chain, a)
		a.version++
		n.rt.sched.enqueue(a)
	}
	if n.rt.debug {
		fmt.Printf("bumped %p to version %d\n", n, n.version)
	}
	for _, a := range chain {
		n.rt.sched.fireImmediate(a)
	}
	n.rt.sched.opDone(n.rt)
}

// identical reports whether a write of next over prev would be a no-op:
// equal primitives, or the same identity for references.  Uncomparable
// values of differing identity are never identical.
func identical(prev, next interface{}) bool {
	if prev == nil || next == nil {
		return prev == nil && next == nil
	}
	tp, tn := reflect.TypeOf(prev), reflect.TypeOf(next)
	if tp != tn {
		return false
	}
	if tp.Comparable() {
		return safeEqual(prev, next)
	}
	switch tp.Kind() {
	case reflect.Map, reflect.Func:
		return reflect.ValueOf(prev).Pointer() == reflect.ValueOf(next).Pointer()
	case reflect.Slice:
		vp, vn := reflect.ValueOf(prev), reflect.ValueOf(next)
		if vp.Len() == 0 || vn.Len() == 0 {
			// Distinct empty slices can share the runtime's zero-size
			// allocation, so their data pointers carry no identity.
			return false
		}
		return vp.Len() == vn.Len() && vp.Pointer() == vn.Pointer()
	}
	return false
}

// safeEqual compares two values of the same comparable type.  A
// comparable struct or array type can still carry an uncomparable value
// behind an interface field, and comparing those panics at runtime;
// such values are reported not identical.
func safeEqual(prev, next interface{}) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return prev == next
}

// checkStorable rejects values that cannot be stored in a node.
func checkStorable(v interface{}) (interface{}, error) {
	if r, ok := v.(OpaqueRef); ok {
		if _, isNode := r.value.(*Node); isNode {
			return nil, fmt.Errorf("cannot mark a wrapped node Opaque")
		}
		return r, nil
	}
	return v, nil
}

// Get returns the value stored under key.  A nested plain structure is
// wrapped (and the wrapping cached) before being returned; an Opaque
// value is returned as-is, unwrapped and untracked.
func (n *Node) Get(key string) (interface{}, bool) {
	if n.kind != kindMap {
		return nil, false
	}
	v, ok := n.entries[key]
	if !ok {
		return nil, false
	}
	return n.read(key, v), true
}

func (n *Node) read(key string, v interface{}) interface{} {
	switch t := v.(type) {
	case *Node:
		return t
	case OpaqueRef:
		return t.value
	case map[string]interface{}, []interface{}:
		child := n.wrapChild(v)
		n.writeBack(key, child)
		return child
	default:
		return v
	}
}

// writeBack installs a lazily-created wrapper in place of the raw value
// it wraps.  Not a mutation: no version bump, no notification.
func (n *Node) writeBack(key string, child interface{}) {
	if n.kind == kindMap {
		n.entries[key] = child
		return
	}
	if i, err := strconv.Atoi(key); err == nil && i >= 0 && i < len(n.items) {
		n.items[i] = child
	}
}

// Set stores value under key.  Storing a value identical to the current
// one is a no-op: no version bump, no notification.
func (n *Node) Set(key string, value interface{}) error {
	if n.kind != kindMap {
		return fmt.Errorf("set %q: node holds a list; use SetAt", key)
	}
	value, err := checkStorable(value)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	old, existed := n.entries[key]
	if existed && storedIdentical(old, value) {
		return nil
	}
	if existed {
		n.detachValue(old)
	} else {
		n.order = append(n.order, key)
	}
	n.entries[key] = n.adopt(value)
	n.bump()
	return nil
}

// Delete removes the entry under key.  Deleting an absent key is a
// no-op.
func (n *Node) Delete(key string) error {
	if n.kind != kindMap {
		return fmt.Errorf("delete %q: node holds a list; use DeleteAt", key)
	}
	old, existed := n.entries[key]
	if !existed {
		return nil
	}
	n.detachValue(old)
	delete(n.entries, key)
	for i, k := range n.order {
		if k == key {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
	n.bump()
	return nil
}

// Keys returns the node's keys in insertion order, or nil for a list
// node.
func (n *Node) Keys() []string {
	if n.kind != kindMap {
		return nil
	}
	return append([]string(nil), n.order...)
}

// Len returns the number of entries or items.
func (n *Node) Len() int {
	if n.kind == kindMap {
		return len(n.entries)
	}
	return len(n.items)
}

// At returns the value stored at index i of a list node, with the same
// lazy wrapping as Get.
func (n *Node) At(i int) (interface{}, error) {
	if n.kind != kindList {
		return nil, fmt.Errorf("at %d: node holds a map; use Get", i)
	}
	if i < 0 || i >= len(n.items) {
		return nil, fmt.Errorf("index %d out of range [0,%d)", i, len(n.items))
	}
	return n.read(strconv.Itoa(i), n.items[i]), nil
}

// SetAt stores value at index i of a list node, with the same no-op
// suppression as Set.
func (n *Node) SetAt(i int, value interface{}) error {
	if n.kind != kindList {
		return fmt.Errorf("setAt %d: node holds a map; use Set", i)
	}
	if i < 0 || i >= len(n.items) {
		return fmt.Errorf("index %d out of range [0,%d)", i, len(n.items))
	}
	value, err := checkStorable(value)
	if err != nil {
		return fmt.Errorf("setAt %d: %w", i, err)
	}
	if storedIdentical(n.items[i], value) {
		return nil
	}
	n.detachValue(n.items[i])
	n.items[i] = n.adopt(value)
	n.bump()
	return nil
}

// Append adds value at the end of a list node.
func (n *Node) Append(value interface{}) error {
	if n.kind != kindList {
		return fmt.Errorf("append: node holds a map; use Set")
	}
	value, err := checkStorable(value)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}
	n.items = append(n.items, n.adopt(value))
	n.bump()
	return nil
}

// DeleteAt removes the item at index i of a list node.
func (n *Node) DeleteAt(i int) error {
	if n.kind != kindList {
		return fmt.Errorf("deleteAt %d: node holds a map; use Delete", i)
	}
	if i < 0 || i >= len(n.items) {
		return fmt.Errorf("index %d out of range [0,%d)", i, len(n.items))
	}
	n.detachValue(n.items[i])
	n.items = append(n.items[:i], n.items[i+1:]...)
	n.bump()
	return nil
}

// adopt prepares a value for storage: wrapped nodes are re-parented
// under n, plain structures are stored raw for lazy wrapping, and
// everything else is stored as-is.
func (n *Node) adopt(v interface{}) interface{} {
	if child, ok := v.(*Node); ok {
		child.attach(n)
	}
	return v
}

// storedIdentical compares an already-stored value with an incoming one
// for the no-op write check, unwrapping Opaque markers on both sides.
// An incoming raw container is identical to the node already wrapping
// it.
func storedIdentical(old, next interface{}) bool {
	if r, ok := old.(OpaqueRef); ok {
		old = r.value
	}
	if r, ok := next.(OpaqueRef); ok {
		next = r.value
	}
	if oldNode, ok := old.(*Node); ok {
		if nextNode, ok := next.(*Node); ok {
			return oldNode == nextNode
		}
		return oldNode.rawPtr != 0 && oldNode.rawPtr == rawPointer(next)
	}
	return identical(old, next)
}

func rawPointer(v interface{}) uintptr {
	switch t := v.(type) {
	case map[string]interface{}:
		return reflect.ValueOf(t).Pointer()
	case []interface{}:
		if len(t) == 0 {
			return 0
		}
		return reflect.ValueOf(t).Pointer()
	}
	return 0
}

// GetPath descends through nested nodes following path elements, each a
// string key or an int index, and returns the value at the end.
func (n *Node) GetPath(path ...interface{}) (interface{}, bool) {
	var cur interface{} = n
	for _, elem := range path {
		node, ok := cur.(*Node)
		if !ok {
			return nil, false
		}
		switch e := elem.(type) {
		case string:
			cur, ok = node.Get(e)
			if !ok {
				return nil, false
			}
		case int:
			v, err := node.At(e)
			if err != nil {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

// SetPath stores value at the end of path, descending through nested
// nodes; every intermediate element must already exist.
func (n *Node) SetPath(value interface{}, path ...interface{}) error {
	if len(path) == 0 {
		return fmt.Errorf("setPath: empty path")
	}
	parent, err := n.descend(path[:len(path)-1])
	if err != nil {
		return fmt.Errorf("setPath: %w", err)
	}
	switch e := path[len(path)-1].(type) {
	case string:
		return parent.Set(e, value)
	case int:
		return parent.SetAt(e, value)
	default:
		return fmt.Errorf("setPath: path element %v is neither string nor int", e)
	}
}

// DeletePath removes the entry at the end of path.
func (n *Node) DeletePath(path ...interface{}) error {
	if len(path) == 0 {
		return fmt.Errorf("deletePath: empty path")
	}
	parent, err := n.descend(path[:len(path)-1])
	if err != nil {
		return fmt.Errorf("deletePath: %w", err)
	}
	switch e := path[len(path)-1].(type) {
	case string:
		return parent.Delete(e)
	case int:
		return parent.DeleteAt(e)
	default:
		return fmt.Errorf("deletePath: path element %v is neither string nor int", e)
	}
}

func (n *Node) descend(path []interface{}) (*Node, error) {
	v, ok := n.GetPath(path...)
	if !ok {
		return nil, fmt.Errorf("path %v not present", path)
	}
	node, ok := v.(*Node)
	if !ok {
		return nil, fmt.Errorf("path %v holds a non-structural value", path)
	}
	return node, nil
}
