package primitives

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalJSON re-encodes v with sorted object keys and no insignificant
// whitespace, matching the signing input used across the cross-signing and
// device-key signature checks (§4.4/§4.5). Go's encoding/json already sorts
// map[string]any keys when marshaling, so the canonical form is obtained by
// round-tripping through a generic value and compacting the result.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("primitives: marshal for canonicalization: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("primitives: unmarshal for canonicalization: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("primitives: marshal canonical form: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, canonical); err != nil {
		return nil, fmt.Errorf("primitives: compact canonical form: %w", err)
	}
	return buf.Bytes(), nil
}
