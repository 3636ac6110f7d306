// Package redact removes sensitive values from arbitrary JSON-like data
// before it is persisted or shipped anywhere.
package redact

import (
	"strings"
)

const (
	// Mask replaces any value whose key matches the sensitive set.
	Mask = "[REDACTED]"
	// DepthMask replaces subtrees nested beyond the depth limit.
	DepthMask = "[MAX_DEPTH]"
)

const (
	DefaultDepthLimit = 6
	DefaultArrayLimit = 100
)

// defaultKeys covers the usual credential and PII field names. Matching is
// case-insensitive and whitespace-trimmed.
var defaultKeys = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"access_token",
	"refresh_token",
	"api_key",
	"apikey",
	"api_secret",
	"authorization",
	"cookie",
	"set-cookie",
	"private_key",
	"creditcard",
	"credit_card",
	"card_number",
	"cvv",
	"ssn",
	"pin",
}

// KeySet is an immutable, case-insensitive set of sensitive field names.
type KeySet struct {
	keys map[string]struct{}
}

// NewKeySet returns the default set extended with extra names. The set is
// never mutated after construction, so it is safe to share across requests.
func NewKeySet(extra ...string) *KeySet {
	keys := make(map[string]struct{}, len(defaultKeys)+len(extra))
	for _, k := range defaultKeys {
		keys[k] = struct{}{}
	}
	for _, k := range extra {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	return &KeySet{keys: keys}
}

// Contains reports whether key is sensitive.
func (s *KeySet) Contains(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.keys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// Options controls recursion bounds and the key set used by Value.
type Options struct {
	DepthLimit int
	ArrayLimit int
	Keys       *KeySet
}

func (o Options) withDefaults() Options {
	if o.DepthLimit <= 0 {
		o.DepthLimit = DefaultDepthLimit
	}
	if o.ArrayLimit <= 0 {
		o.ArrayLimit = DefaultArrayLimit
	}
	if o.Keys == nil {
		o.Keys = NewKeySet()
	}
	return o
}

// Value returns a sanitized copy of v. Map values whose key matches the
// sensitive set are replaced wholesale with Mask, even when they hold nested
// structures. Slices are truncated to the array limit. Once recursion passes
// the depth limit the remaining subtree becomes DepthMask. The input is
// never mutated.
func Value(v interface{}, opts Options) interface{} {
	opts = opts.withDefaults()
	return walk(v, 0, opts)
}

func walk(v interface{}, depth int, opts Options) interface{} {
	if depth > opts.DepthLimit {
		return DepthMask
	}
	switch raw := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(raw))
		for key, val := range raw {
			if opts.Keys.Contains(key) {
				out[key] = Mask
				continue
			}
			out[key] = walk(val, depth+1, opts)
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(raw))
		for key, val := range raw {
			if opts.Keys.Contains(key) {
				out[key] = Mask
				continue
			}
			out[key] = val
		}
		return out
	case []interface{}:
		n := len(raw)
		if n > opts.ArrayLimit {
			n = opts.ArrayLimit
		}
		out := make([]interface{}, n)
		for i := 0; i < n; i++ {
			out[i] = walk(raw[i], depth+1, opts)
		}
		return out
	case []string:
		n := len(raw)
		if n > opts.ArrayLimit {
			n = opts.ArrayLimit
		}
		out := make([]interface{}, n)
		for i := 0; i < n; i++ {
			out[i] = raw[i]
		}
		return out
	default:
		// Scalars and nil pass through untouched.
		return v
	}
}

// Headers sanitizes a flat header map, lower-casing keys.
func Headers(in map[string]string, keys *KeySet) map[string]string {
	if keys == nil {
		keys = NewKeySet()
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		lower := strings.ToLower(k)
		if keys.Contains(lower) {
			out[lower] = Mask
			continue
		}
		out[lower] = v
	}
	return out
}
