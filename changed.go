package vitrine

import "strconv"

// Changed reports whether, for any snapshot object recorded in
// affected, any recorded key's value differs between prev and next.
// Reference-identical snapshots are unchanged by definition.  A key
// present in one snapshot but not the other counts as changed.  If
// either side is not a plain snapshot structure at a point being
// compared, or the comparison cannot otherwise be completed safely,
// the result is conservatively "changed"; Changed never fails on
// legitimate input.
func Changed(prev, next interface{}, affected *Affected) bool {
	if identical(prev, next) {
		return false
	}
	if affected == nil {
		return true
	}
	switch p := prev.(type) {
	case *Map:
		n, ok := next.(*Map)
		if !ok {
			return true
		}
		return mapChanged(p, n, affected)
	case *List:
		n, ok := next.(*List)
		if !ok {
			return true
		}
		return listChanged(p, n, affected)
	default:
		// Non-structural leaves differing in identity have changed.
		return true
	}
}

func mapChanged(prev, next *Map, affected *Affected) bool {
	u := affected.used[prev]
	if u == nil {
		// The consumer read this object without the recorder seeing it;
		// nothing proves equivalence.
		return true
	}
	if u.keys && !sameKeys(prev.keys, next.keys) {
		return true
	}
	for k := range u.has {
		if prev.Has(k) != next.Has(k) {
			return true
		}
	}
	for k := range u.gets {
		pv, pok := prev.Get(k)
		nv, nok := next.Get(k)
		if pok != nok {
			return true
		}
		if !pok {
			continue
		}
		if Changed(pv, nv, affected) {
			return true
		}
	}
	return false
}

func listChanged(prev, next *List, affected *Affected) bool {
	u := affected.used[prev]
	if u == nil {
		return true
	}
	if u.keys && prev.Len() != next.Len() {
		return true
	}
	for k := range u.gets {
		i, err := strconv.Atoi(k)
		if err != nil {
			return true
		}
		pv, pok := prev.At(i)
		nv, nok := next.At(i)
		if pok != nok {
			return true
		}
		if !pok {
			continue
		}
		if Changed(pv, nv, affected) {
			return true
		}
	}
	return false
}

func sameKeys(prev, next []string) bool {
	if len(prev) != len(next) {
		return false
	}
	for i := range prev {
		if prev[i] != next[i] {
			return false
		}
	}
	return true
}
