package collect

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Fingerprint identifies an entity universe. Two universes with the same
// (id, name) pairs have the same Fingerprint regardless of order.
type Fingerprint [sha1.Size]byte

// NewFingerprint hashes the (id, name) pairs of entities after sorting them
// by id and then name.
func NewFingerprint(entities []Entity) Fingerprint {
	pairs := make([]Entity, len(entities))
	copy(pairs, entities)
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].ID != pairs[j].ID {
			return pairs[i].ID < pairs[j].ID
		}
		return pairs[i].Name < pairs[j].Name
	})

	h := sha1.New()
	buf := make([]byte, 0, 64)
	for _, e := range pairs {
		buf = strconv.AppendUint(buf[:0], e.ID, 10)
		buf = append(buf, ',')
		buf = append(buf, e.Name...)
		buf = append(buf, '\n')
		h.Write(buf) // never returns error for hash
	}
	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp
}

// String returns the lower-case hex encoding of f.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ArtifactName derives the warehouse artifact name for a fingerprint. The
// same prefix and fingerprint always produce the same name.
func ArtifactName(prefix string, f Fingerprint) string {
	prefix = strings.Trim(prefix, "_ ")
	if prefix == "" {
		return f.String()
	}
	return prefix + "_" + f.String()
}
