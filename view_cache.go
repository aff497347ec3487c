package vitrine

import lru "github.com/hashicorp/golang-lru"

// ViewCache caches instrumented views by snapshot identity, so that a
// consumer re-reading the same snapshot substructure sees the same
// view.  A cache belongs to one consumer and one Affected; discard
// both together.
type ViewCache interface {
	// Add associates a freshly-built view with a snapshot.
	Add(key, value interface{})
	// Get retrieves the view for a snapshot, if cached.
	Get(key interface{}) (value interface{}, ok bool)
}

// NewViewCache creates a new LRU-based view cache of the given size.
func NewViewCache(size int) ViewCache {
	cache, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}
	return cache
}
