package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitWithinBudgetIsExactSerialization(t *testing.T) {
	v := map[string]interface{}{"name": "x", "count": float64(3)}
	expected, err := json.Marshal(v)
	require.NoError(t, err)

	assert.Equal(t, string(expected), Limit(v, DefaultMaxBytes))
}

func TestLimitTruncatesAndEmbedsHashOfFullSerialization(t *testing.T) {
	v := map[string]string{"blob": strings.Repeat("a", 500)}
	full, err := json.Marshal(v)
	require.NoError(t, err)

	maxBytes := 100
	out := Limit(v, maxBytes)

	sum := sha256.Sum256(full)
	marker := fmt.Sprintf("[TRUNCATED sha256=%s]", hex.EncodeToString(sum[:]))

	assert.True(t, strings.HasSuffix(out, marker))
	assert.Equal(t, string(full[:maxBytes]), strings.TrimSuffix(out, marker))
	assert.LessOrEqual(t, len(out), maxBytes+len(marker))
}

func TestTruncationKeepsValidUTF8(t *testing.T) {
	// 2-byte runes, with a budget landing mid-rune.
	raw := []byte(strings.Repeat("é", 50))
	maxBytes := 25

	out := LimitBytes(raw, maxBytes)

	marker := "[TRUNCATED sha256="
	idx := strings.Index(out, marker)
	require.Positive(t, idx)
	prefix := out[:idx]
	assert.True(t, utf8.ValidString(prefix))
	assert.Equal(t, 24, len(prefix))
}

func TestLimitUnserializable(t *testing.T) {
	assert.Equal(t, Unserializable, Limit(make(chan int), 100))
	assert.Equal(t, Unserializable, Limit(func() {}, 100))
}

func TestLimitZeroBudgetUsesDefault(t *testing.T) {
	out := Limit("small", 0)
	assert.Equal(t, `"small"`, out)
}
