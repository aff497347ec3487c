package vitrine

import (
	"encoding/base64"
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/minio/blake2b-simd"
)

var jsonit = jsoniter.ConfigCompatibleWithStandardLibrary

// Fingerprint returns a content hash of a snapshot: blake2b-256 of its
// canonical JSON encoding, in base64 raw-URL form.  Two snapshots with
// equal content fingerprint equally even across different roots or
// processes, where reference equality cannot be used.  The snapshot
// must be acyclic and its leaves JSON-encodable.
func Fingerprint(snapshot interface{}) (string, error) {
	encoded, err := jsonit.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	hashBytes := blake2b.Sum256(encoded)
	return base64.RawURLEncoding.EncodeToString(hashBytes[:]), nil
}

// MarshalJSON encodes the snapshot as a JSON object with keys in
// sorted order, so the encoding is canonical for a given content.
func (m *Map) MarshalJSON() ([]byte, error) {
	keys := append([]string(nil), m.keys...)
	sort.Strings(keys)
	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := jsonit.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		vb, err := jsonit.Marshal(m.vals[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value of %q: %w", k, err)
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	return append(buf, '}'), nil
}

// MarshalJSON encodes the snapshot as a JSON array.
func (l *List) MarshalJSON() ([]byte, error) {
	return jsonit.Marshal(l.items)
}
