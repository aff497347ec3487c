package vitrine

import "strconv"

// Affected records, per consumer, which keys were read on which
// snapshot objects, recursively.  It only grows within one compute
// pass; call Reset before the next pass rather than merging passes.
type Affected struct {
	used map[interface{}]*usage
}

// usage is the access record for one snapshot object.  List indices
// are recorded as their decimal strings.
type usage struct {
	gets map[string]struct{}
	has  map[string]struct{}
	keys bool
}

// NewAffected returns an empty affected-path record.
func NewAffected() *Affected {
	return &Affected{used: map[interface{}]*usage{}}
}

// Reset clears the record for the next compute pass.  Views produced by
// Track keep recording into the same Affected, so a persistent ViewCache
// stays valid across passes.
func (a *Affected) Reset() {
	a.used = map[interface{}]*usage{}
}

func (a *Affected) usageFor(snap interface{}) *usage {
	u, ok := a.used[snap]
	if !ok {
		u = &usage{
			gets: map[string]struct{}{},
			has:  map[string]struct{}{},
		}
		a.used[snap] = u
	}
	return u
}

// Track wraps a snapshot subtree in a read-instrumented view: every
// access through the view is recorded in affected, and nested
// structures are wrapped recursively for continued tracking.
// Non-structural values (primitives, Opaque values) are returned
// unwrapped.
//
// The cache is consumer-scoped: repeated calls for the same snapshot
// substructure return the same instrumented-view identity.  A cache
// must not outlive the Affected its views record into; pair one cache
// with one Affected, and Reset the Affected between passes.  A nil
// cache disables view identity caching.
func Track(snapshot interface{}, affected *Affected, cache ViewCache) interface{} {
	switch s := snapshot.(type) {
	case *Map:
		if cache != nil {
			if v, ok := cache.Get(s); ok {
				return v
			}
		}
		t := &TrackedMap{snap: s, aff: affected, cache: cache}
		if cache != nil {
			cache.Add(s, t)
		}
		return t
	case *List:
		if cache != nil {
			if v, ok := cache.Get(s); ok {
				return v
			}
		}
		t := &TrackedList{snap: s, aff: affected, cache: cache}
		if cache != nil {
			cache.Add(s, t)
		}
		return t
	default:
		return snapshot
	}
}

// TrackedMap is a read-instrumented view over a *Map snapshot.
type TrackedMap struct {
	snap  *Map
	aff   *Affected
	cache ViewCache
}

// Get returns the value under key, recording the access.  Nested
// structures come back tracked.
func (t *TrackedMap) Get(key string) (interface{}, bool) {
	u := t.aff.usageFor(t.snap)
	u.gets[key] = struct{}{}
	v, ok := t.snap.Get(key)
	if !ok {
		return nil, false
	}
	return Track(v, t.aff, t.cache), true
}

// Has reports whether key is present, recording the existence check.
func (t *TrackedMap) Has(key string) bool {
	t.aff.usageFor(t.snap).has[key] = struct{}{}
	return t.snap.Has(key)
}

// Keys returns the keys, recording the enumeration.
func (t *TrackedMap) Keys() []string {
	t.aff.usageFor(t.snap).keys = true
	return t.snap.Keys()
}

// Len returns the number of entries, recording the enumeration.
func (t *TrackedMap) Len() int {
	t.aff.usageFor(t.snap).keys = true
	return t.snap.Len()
}

// Range invokes f for every entry until f returns false, recording the
// enumeration and each value access.
func (t *TrackedMap) Range(f func(key string, v interface{}) bool) {
	for _, k := range t.Keys() {
		v, _ := t.Get(k)
		if !f(k, v) {
			return
		}
	}
}

// Snapshot returns the underlying uninstrumented snapshot.
func (t *TrackedMap) Snapshot() *Map {
	return t.snap
}

// TrackedList is a read-instrumented view over a *List snapshot.
type TrackedList struct {
	snap  *List
	aff   *Affected
	cache ViewCache
}

// At returns the value at index i, recording the access.
func (t *TrackedList) At(i int) (interface{}, bool) {
	u := t.aff.usageFor(t.snap)
	u.gets[strconv.Itoa(i)] = struct{}{}
	v, ok := t.snap.At(i)
	if !ok {
		return nil, false
	}
	return Track(v, t.aff, t.cache), true
}

// Len returns the number of items, recording the enumeration.
func (t *TrackedList) Len() int {
	t.aff.usageFor(t.snap).keys = true
	return t.snap.Len()
}

// Range invokes f for every item until f returns false, recording the
// enumeration and each item access.
func (t *TrackedList) Range(f func(i int, v interface{}) bool) {
	n := t.Len()
	for i := 0; i < n; i++ {
		v, _ := t.At(i)
		if !f(i, v) {
			return
		}
	}
}

// Snapshot returns the underlying uninstrumented snapshot.
func (t *TrackedList) Snapshot() *List {
	return t.snap
}
