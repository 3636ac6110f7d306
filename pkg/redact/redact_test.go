package redact

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueMasksSensitiveKeysAtAnyDepth(t *testing.T) {
	in := map[string]interface{}{
		"name":     "x",
		"password": "secret123",
		"nested": map[string]interface{}{
			"Token": "abc",
			"inner": map[string]interface{}{
				"CreditCard": "4111111111111111",
				"note":       "keep",
			},
		},
	}
	out := Value(in, Options{}).(map[string]interface{})

	assert.Equal(t, "x", out["name"])
	assert.Equal(t, Mask, out["password"])

	nested := out["nested"].(map[string]interface{})
	assert.Equal(t, Mask, nested["Token"])

	inner := nested["inner"].(map[string]interface{})
	assert.Equal(t, Mask, inner["CreditCard"])
	assert.Equal(t, "keep", inner["note"])
}

func TestValueMasksWholeNestedObjectUnderSensitiveKey(t *testing.T) {
	in := map[string]interface{}{
		"secret": map[string]interface{}{"a": 1, "b": 2},
	}
	out := Value(in, Options{}).(map[string]interface{})
	// The value is replaced wholesale, not partially walked.
	assert.Equal(t, Mask, out["secret"])
}

func TestValueDoesNotMutateInput(t *testing.T) {
	in := map[string]interface{}{
		"password": "secret123",
		"list":     []interface{}{map[string]interface{}{"token": "t"}},
	}
	_ = Value(in, Options{})

	assert.Equal(t, "secret123", in["password"])
	elem := in["list"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "t", elem["token"])
}

func TestValueDepthLimit(t *testing.T) {
	// Build a map nested deeper than the limit.
	leaf := map[string]interface{}{"password": "deep"}
	cur := interface{}(leaf)
	for i := 0; i < 10; i++ {
		cur = map[string]interface{}{"next": cur}
	}

	out := Value(cur, Options{DepthLimit: 3})

	// Walk back down: after three levels the subtree must be the depth marker.
	m := out.(map[string]interface{})
	for i := 0; i < 2; i++ {
		m = m["next"].(map[string]interface{})
	}
	assert.Equal(t, DepthMask, m["next"])
}

func TestValueArrayLimit(t *testing.T) {
	in := make([]interface{}, 250)
	for i := range in {
		in[i] = i
	}
	out := Value(in, Options{ArrayLimit: 100}).([]interface{})
	assert.Len(t, out, 100)
}

func TestValueIdempotent(t *testing.T) {
	in := map[string]interface{}{
		"password": "secret123",
		"items":    []interface{}{map[string]interface{}{"ssn": "123-45-6789", "ok": true}},
		"empty":    map[string]interface{}{},
	}
	once := Value(in, Options{})
	twice := Value(once, Options{})
	require.True(t, reflect.DeepEqual(once, twice))
}

func TestValueScalarsAndNil(t *testing.T) {
	assert.Equal(t, 42, Value(42, Options{}))
	assert.Equal(t, "plain", Value("plain", Options{}))
	assert.Nil(t, Value(nil, Options{}))
}

func TestValueEmptyContainers(t *testing.T) {
	m := Value(map[string]interface{}{}, Options{}).(map[string]interface{})
	assert.Empty(t, m)
	s := Value([]interface{}{}, Options{}).([]interface{})
	assert.Empty(t, s)
}

func TestValueHandlesUnmarshaledJSON(t *testing.T) {
	var data interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"user":{"PIN":"0000","name":"a"},"tags":["x","y"]}`), &data))

	out := Value(data, Options{}).(map[string]interface{})
	user := out["user"].(map[string]interface{})
	assert.Equal(t, Mask, user["PIN"])
	assert.Equal(t, "a", user["name"])
}

func TestNewKeySetAdditive(t *testing.T) {
	keys := NewKeySet("X-Internal-Secret", " custom_field ")
	assert.True(t, keys.Contains("x-internal-secret"))
	assert.True(t, keys.Contains("CUSTOM_FIELD"))
	assert.True(t, keys.Contains("password"))
	assert.False(t, keys.Contains("name"))
}

func TestHeaders(t *testing.T) {
	out := Headers(map[string]string{
		"Authorization": "Bearer abc",
		"Content-Type":  "application/json",
	}, nil)
	assert.Equal(t, Mask, out["authorization"])
	assert.Equal(t, "application/json", out["content-type"])
}
