// Package stablehash implements the canonical stringification and hashing
// routine shared by the agent and the server. It is the interoperability
// contract behind NodeSystemInfo.hash: both sides must produce byte-identical
// output for the same logical value, or change detection silently breaks.
//
// Canonicalization rules: object keys are sorted, arrays keep source order,
// there is no inter-token whitespace, and the result is UTF-8. Hashing is
// lowercase hex SHA-256 of that canonical form.
package stablehash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonicalize converts v (typically the result of json.Unmarshal into
// map[string]any / []any / primitives) into its canonical JSON form:
// object keys sorted, no whitespace, arrays left in source order.
func Canonicalize(v any) ([]byte, error) {
	norm, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(norm)
}

// Hash returns the lowercase hex SHA-256 digest of v's canonical form.
func Hash(v any) (string, error) {
	canon, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// HashJSON canonicalizes and hashes an already-marshaled JSON value (the
// payload.info object as raw bytes), round-tripping through a generic
// decode so key order in the source bytes never matters.
func HashJSON(raw []byte) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("stablehash: decoding json: %w", err)
	}
	return Hash(v)
}

// normalize produces a structure whose encoding/json output has sorted
// object keys. encoding/json already sorts map[string]any keys on marshal,
// so this mostly passes values through; its job is to ensure every nested
// map decodes to map[string]any rather than a type that wouldn't sort.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			nv, err := normalize(t[k])
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			nv, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		return t, nil
	}
}
