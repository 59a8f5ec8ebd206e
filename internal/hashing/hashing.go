// Package hashing provides the single digest primitive used across the
// marketplace's data model: SHA3-256 over a canonical byte encoding of an
// entity's logical fields. Every entity's hash must be derived the same way
// or chains and transfers signed on one node fail to verify on another.
package hashing

import (
	"encoding/hex"
	"encoding/json"
	"strconv"

	"golang.org/x/crypto/sha3"
)

// Hashable is implemented by every entity that carries a self-describing
// content hash: Block, Transfer, Mint, UTXO.
type Hashable interface {
	// HashRef returns the entity's stored hex digest.
	HashRef() string
	// Valid recomputes the digest from the entity's current fields and
	// compares it against HashRef.
	Valid() bool
}

// Digest hashes the canonical concatenation of fields and returns the lower
// case hex encoding. Fields must be supplied via Scalar/Bytes/Sequence below
// so every caller produces the same byte stream for logically equal values.
func Digest(fields ...[]byte) string {
	h := sha3.New256()
	for _, f := range fields {
		h.Write(f)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Scalar encodes an integer/float/string field as its decimal/plain string
// representation, per the canonicalization rule in SPEC_FULL.md §4.1.
func Scalar(v any) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case int64:
		return []byte(strconv.FormatInt(t, 10))
	case uint64:
		return []byte(strconv.FormatUint(t, 10))
	case float64:
		return []byte(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		b, _ := json.Marshal(t)
		return b
	}
}

// Bytes passes a byte field through unchanged.
func Bytes(b []byte) []byte { return b }

// Sequence encodes an ordered slice of JSON-marshalable elements as the
// concatenation of each element's canonical JSON encoding, in order.
func Sequence[T any](items []T) []byte {
	out := make([]byte, 0, 64*len(items))
	for _, it := range items {
		b, err := json.Marshal(it)
		if err != nil {
			// Marshal failure on an entity's own logical fields indicates a
			// programming error (an un-encodable field slipped into the hash
			// path), not a runtime condition callers can recover from.
			panic("hashing: sequence element not json-marshalable: " + err.Error())
		}
		out = append(out, b...)
	}
	return out
}
