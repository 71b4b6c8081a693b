package cachestore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Key derives a deterministic fingerprint from the semantically relevant
// parameters of a request. Two requests with identical category and params
// always produce the same key; changing any parameter changes the key.
//
// The fingerprint is the SHA-256 of the category plus the JSON encoding of
// params. encoding/json sorts map keys, so insertion order does not leak into
// the key.
func Key(category string, params map[string]any) string {
	payload := struct {
		Type   string         `json:"type"`
		Params map[string]any `json:"params"`
	}{Type: category, Params: params}

	// Marshaling map[string]any with scalar values cannot fail.
	data, err := json.Marshal(payload)
	if err != nil {
		panic("cachestore: unmarshalable key params: " + err.Error())
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashBytes fingerprints raw content (e.g. a scanned answer-cell image) for
// inclusion in a cache key, so the key tracks image content, not file paths.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
