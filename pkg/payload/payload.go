// Package payload bounds the serialized size of values destined for a log
// sink, keeping a content hash of anything it truncates.
package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

const (
	// DefaultMaxBytes is the serialization budget per captured payload.
	DefaultMaxBytes = 64 * 1024

	// Unserializable is returned when the value cannot be serialized at all.
	Unserializable = "[UNSERIALIZABLE]"
)

// Limit serializes v to JSON. Within the byte budget it returns the exact
// serialization. Over budget it returns the first maxBytes bytes followed by
// a marker carrying the sha256 of the full serialization, so a truncated
// payload can still be correlated with the original. Serialization failures
// degrade to the Unserializable marker; Limit never returns an error.
func Limit(v interface{}, maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Unserializable
	}
	if len(raw) <= maxBytes {
		return string(raw)
	}
	return truncate(raw, maxBytes)
}

// LimitBytes bounds an already-serialized payload (e.g. a non-JSON request
// body) with the same truncation-plus-hash policy.
func LimitBytes(raw []byte, maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(raw) <= maxBytes {
		return string(raw)
	}
	return truncate(raw, maxBytes)
}

func truncate(raw []byte, maxBytes int) string {
	sum := sha256.Sum256(raw)
	// Back off to the previous rune boundary so the kept prefix stays
	// valid UTF-8.
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(raw[cut]) {
		cut--
	}
	return fmt.Sprintf("%s[TRUNCATED sha256=%s]", raw[:cut], hex.EncodeToString(sum[:]))
}
