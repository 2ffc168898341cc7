package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/mapforge-io/mapforge/internal/dsl"
)

// CompiledHash computes the SHA-256 of the mapping's canonical JSON form:
// object keys sorted, no whitespace, UTF-8. Marshaling a decoded document
// tree yields exactly that, so the hash is stable under key reordering and
// formatting changes in the source.
func CompiledHash(m *dsl.Mapping) (string, error) {
	doc, err := m.CanonicalDoc()
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
