package vitrine

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Parallel()
	n, err := Wrap(map[string]interface{}{"count": 0}, nil)
	require.NoError(t, err)
	v, ok := n.Get("count")
	require.True(t, ok)
	require.Equal(t, 0, v)
	require.Equal(t, uint64(1), n.version)
}

func TestWrapNil(t *testing.T) {
	t.Parallel()
	n, err := Wrap(nil, nil)
	require.NoError(t, err)
	require.Equal(t, 0, n.Len())
}

func TestWrapRejectsNonStructural(t *testing.T) {
	t.Parallel()
	_, err := Wrap(42, nil)
	require.Error(t, err)
	_, err = Wrap("hello", nil)
	require.Error(t, err)
	_, err = Wrap(map[int]string{1: "a"}, nil)
	require.Error(t, err)
	_, err = Wrap(Opaque(map[string]interface{}{}), nil)
	require.Error(t, err)
}

func TestWrapNodePassthrough(t *testing.T) {
	t.Parallel()
	n, err := Wrap(map[string]interface{}{}, nil)
	require.NoError(t, err)
	n2, err := Wrap(n, nil)
	require.NoError(t, err)
	require.Same(t, n, n2)
}

func TestLazyWrapIdentity(t *testing.T) {
	t.Parallel()
	n, err := Wrap(map[string]interface{}{
		"profile": map[string]interface{}{"name": "a"},
	}, nil)
	require.NoError(t, err)
	p1, ok := n.Get("profile")
	require.True(t, ok)
	p2, ok := n.Get("profile")
	require.True(t, ok)
	require.Same(t, p1.(*Node), p2.(*Node))
}

func TestSameRawWrapsToSameNode(t *testing.T) {
	t.Parallel()
	shared := map[string]interface{}{"x": 1}
	n, err := Wrap(map[string]interface{}{}, nil)
	require.NoError(t, err)
	require.NoError(t, n.Set("a", shared))
	a, _ := n.Get("a")
	require.NoError(t, n.Set("b", shared))
	b, _ := n.Get("b")
	require.Same(t, a.(*Node), b.(*Node))
	// single-owner: the node now answers to its latest parent
	require.Same(t, n, b.(*Node).parent)
}

func TestNoOpWriteSuppression(t *testing.T) {
	t.Parallel()
	n, err := Wrap(map[string]interface{}{"count": 1, "name": "a"}, nil)
	require.NoError(t, err)
	before := n.version
	require.NoError(t, n.Set("count", 1))
	require.NoError(t, n.Set("name", "a"))
	require.Equal(t, before, n.version)

	require.NoError(t, n.Set("count", 2))
	require.Equal(t, before+1, n.version)
}

func TestNoOpWriteSuppressionRawContainer(t *testing.T) {
	t.Parallel()
	raw := map[string]interface{}{"x": 1}
	n, err := Wrap(map[string]interface{}{}, nil)
	require.NoError(t, err)
	require.NoError(t, n.Set("sub", raw))
	_, _ = n.Get("sub") // wrap it
	before := n.version
	require.NoError(t, n.Set("sub", raw))
	require.Equal(t, before, n.version)
}

func TestVersionPropagation(t *testing.T) {
	t.Parallel()
	n, err := Wrap(map[string]interface{}{
		"a": map[string]interface{}{
			"b": map[string]interface{}{"c": 1},
		},
	}, nil)
	require.NoError(t, err)
	a, _ := n.Get("a")
	b, _ := a.(*Node).Get("b")

	rootBefore := n.version
	aBefore := a.(*Node).version
	bBefore := b.(*Node).version

	require.NoError(t, b.(*Node).Set("c", 2))
	assert.Equal(t, bBefore+1, b.(*Node).version)
	assert.Equal(t, aBefore+1, a.(*Node).version)
	assert.Equal(t, rootBefore+1, n.version)
}

func TestVersionProbe(t *testing.T) {
	t.Parallel()
	n, err := Wrap(map[string]interface{}{}, nil)
	require.NoError(t, err)
	v, ok := Version(n)
	require.True(t, ok)
	require.Equal(t, uint64(1), v)

	_, ok = Version(42)
	require.False(t, ok)
	_, ok = Version(nil)
	require.False(t, ok)
	_, ok = Version(map[string]interface{}{})
	require.False(t, ok)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	n, err := Wrap(map[string]interface{}{"a": 1, "b": 2}, nil)
	require.NoError(t, err)
	before := n.version
	require.NoError(t, n.Delete("a"))
	require.Equal(t, before+1, n.version)
	_, ok := n.Get("a")
	require.False(t, ok)
	require.Equal(t, []string{"b"}, n.Keys())

	// deleting an absent key is a no-op
	require.NoError(t, n.Delete("a"))
	require.Equal(t, before+1, n.version)
}

func TestMoveChildCorrectsAncestorLink(t *testing.T) {
	t.Parallel()
	n, err := Wrap(map[string]interface{}{
		"left":  map[string]interface{}{},
		"right": map[string]interface{}{},
	}, nil)
	require.NoError(t, err)
	left, _ := n.Get("left")
	right, _ := n.Get("right")
	require.NoError(t, left.(*Node).Set("child", map[string]interface{}{"x": 1}))
	child, _ := left.(*Node).Get("child")

	require.NoError(t, right.(*Node).Set("child", child))
	require.Same(t, right.(*Node), child.(*Node).parent)

	// mutations now propagate through the new owner only
	rightBefore := right.(*Node).version
	leftBefore := left.(*Node).version
	require.NoError(t, child.(*Node).Set("x", 2))
	assert.Equal(t, rightBefore+1, right.(*Node).version)
	assert.Equal(t, leftBefore, left.(*Node).version)
}

func TestOverwriteDetachesChild(t *testing.T) {
	t.Parallel()
	n, err := Wrap(map[string]interface{}{
		"sub": map[string]interface{}{"x": 1},
	}, nil)
	require.NoError(t, err)
	sub, _ := n.Get("sub")
	require.NoError(t, n.Set("sub", "gone"))
	require.Nil(t, sub.(*Node).parent)

	before := n.version
	require.NoError(t, sub.(*Node).Set("x", 2))
	require.Equal(t, before, n.version)
}

func TestListOps(t *testing.T) {
	t.Parallel()
	n, err := Wrap([]interface{}{1, 2, 3}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, n.Len())

	v, err := n.At(1)
	require.NoError(t, err)
	require.Equal(t, 2, v)
	_, err = n.At(3)
	require.Error(t, err)

	before := n.version
	require.NoError(t, n.SetAt(1, 2)) // no-op
	require.Equal(t, before, n.version)
	require.NoError(t, n.SetAt(1, 20))
	require.Equal(t, before+1, n.version)

	require.NoError(t, n.Append(4))
	require.Equal(t, 4, n.Len())
	require.NoError(t, n.DeleteAt(0))
	require.Equal(t, 3, n.Len())
	v, err = n.At(0)
	require.NoError(t, err)
	require.Equal(t, 20, v)

	require.Error(t, n.Set("key", 1))
	require.Error(t, n.Delete("key"))
}

func TestNestedListWrapping(t *testing.T) {
	t.Parallel()
	n, err := Wrap(map[string]interface{}{
		"items": []interface{}{map[string]interface{}{"id": 1}},
	}, nil)
	require.NoError(t, err)
	items, ok := n.Get("items")
	require.True(t, ok)
	itemsNode := items.(*Node)
	first, err := itemsNode.At(0)
	require.NoError(t, err)
	firstNode := first.(*Node)

	rootBefore := n.version
	require.NoError(t, firstNode.Set("id", 2))
	require.Equal(t, rootBefore+1, n.version)
}

func TestOpaquePassthrough(t *testing.T) {
	t.Parallel()
	external := &struct{ Name string }{Name: "ext"}
	n, err := Wrap(map[string]interface{}{}, nil)
	require.NoError(t, err)
	require.NoError(t, n.Set("ext", Opaque(external)))

	v, ok := n.Get("ext")
	require.True(t, ok)
	require.Same(t, external, v)

	// identical opaque write is a no-op
	before := n.version
	require.NoError(t, n.Set("ext", Opaque(external)))
	require.Equal(t, before, n.version)

	// opaque containers are never wrapped
	extMap := map[string]interface{}{"inner": 1}
	require.NoError(t, n.Set("extMap", Opaque(extMap)))
	got, ok := n.Get("extMap")
	require.True(t, ok)
	_, isNode := got.(*Node)
	require.False(t, isNode)
}

func TestOpaqueIdempotent(t *testing.T) {
	t.Parallel()
	v := &struct{}{}
	r := Opaque(v)
	require.Equal(t, r, Opaque(r))
	require.Same(t, v, r.Value())
}

func TestOpaqueNodeRejected(t *testing.T) {
	t.Parallel()
	n, err := Wrap(map[string]interface{}{}, nil)
	require.NoError(t, err)
	child, err := Wrap(map[string]interface{}{}, nil)
	require.NoError(t, err)
	require.Error(t, n.Set("bad", Opaque(child)))
}

func TestPathOps(t *testing.T) {
	t.Parallel()
	n, err := Wrap(map[string]interface{}{
		"users": []interface{}{
			map[string]interface{}{"name": "a"},
		},
	}, nil)
	require.NoError(t, err)

	v, ok := n.GetPath("users", 0, "name")
	require.True(t, ok)
	require.Equal(t, "a", v)

	require.NoError(t, n.SetPath("b", "users", 0, "name"))
	v, ok = n.GetPath("users", 0, "name")
	require.True(t, ok)
	require.Equal(t, "b", v)

	_, ok = n.GetPath("users", 1, "name")
	require.False(t, ok)
	require.Error(t, n.SetPath(1, "missing", "deep"))

	require.NoError(t, n.DeletePath("users", 0, "name"))
	_, ok = n.GetPath("users", 0, "name")
	require.False(t, ok)
}

func TestSetUncomparableStructLeaf(t *testing.T) {
	t.Parallel()
	n, err := Wrap(nil, nil)
	require.NoError(t, err)

	type box struct{ V interface{} }
	leaf := box{V: []int{1}}
	require.NoError(t, n.Set("x", leaf))
	before := n.version

	// comparing two of these with == panics; the no-op write check must
	// treat them as not identical instead
	require.NotPanics(t, func() {
		require.NoError(t, n.Set("x", leaf))
	})
	assert.Equal(t, before+1, n.version)
}

func TestEmptySliceWriteNotSuppressed(t *testing.T) {
	t.Parallel()
	n, err := Wrap(nil, nil)
	require.NoError(t, err)
	require.NoError(t, n.Set("xs", []interface{}{}))
	before := n.version

	// distinct empty slices can share a data pointer; identity is
	// unprovable, so the write goes through
	require.NoError(t, n.Set("xs", []interface{}{}))
	assert.Equal(t, before+1, n.version)
}

func TestWrapRetainsRawContainer(t *testing.T) {
	t.Parallel()
	n, err := Wrap(nil, nil)
	require.NoError(t, err)
	m := map[string]interface{}{"x": 1}
	require.NoError(t, n.Set("child", m))

	// lazy wrapping replaces the stored raw map with the node; the node
	// must keep the map alive while the registry keys on its address
	child, ok := n.Get("child")
	require.True(t, ok)
	node := child.(*Node)
	require.NotZero(t, node.rawPtr)
	require.Equal(t, reflect.ValueOf(m).Pointer(), reflect.ValueOf(node.raw).Pointer())

	// overwriting removes the registry entry and releases the pin
	require.NoError(t, n.Set("child", "gone"))
	assert.Zero(t, node.rawPtr)
	assert.Nil(t, node.raw)
}
