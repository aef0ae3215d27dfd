package typeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeMapStringAny_AssertsOrFails(t *testing.T) {
	m, ok := SafeMapStringAny(map[string]any{"a": 1})
	assert.True(t, ok)
	assert.Equal(t, 1, m["a"])

	_, ok = SafeMapStringAny("not a map")
	assert.False(t, ok)

	_, ok = SafeMapStringAny(nil)
	assert.False(t, ok)
}

func TestSafeString_AssertsOrFails(t *testing.T) {
	s, ok := SafeString("hello")
	assert.True(t, ok)
	assert.Equal(t, "hello", s)

	_, ok = SafeString(42)
	assert.False(t, ok)

	_, ok = SafeString(nil)
	assert.False(t, ok)
}

func TestSafeStringDefault_FallsBackOnMismatch(t *testing.T) {
	assert.Equal(t, "fallback", SafeStringDefault(42, "fallback"))
	assert.Equal(t, "value", SafeStringDefault("value", "fallback"))
}

func TestSafeInt_AcceptsDecoderNumericTypes(t *testing.T) {
	cases := []any{int(7), int32(7), int64(7), float32(7), float64(7)}
	for _, v := range cases {
		i, ok := SafeInt(v)
		assert.True(t, ok, "%T", v)
		assert.Equal(t, 7, i)
	}

	_, ok := SafeInt("7")
	assert.False(t, ok)
}

func TestSafeIntDefault_FallsBackOnMismatch(t *testing.T) {
	assert.Equal(t, 5, SafeIntDefault("nope", 5))
	assert.Equal(t, 9, SafeIntDefault(float64(9), 5))
}

func TestSafeBool_AssertsOrFails(t *testing.T) {
	b, ok := SafeBool(true)
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = SafeBool("true")
	assert.False(t, ok)
}

func TestSafeBoolDefault_FallsBackOnMismatch(t *testing.T) {
	assert.True(t, SafeBoolDefault("nope", true))
	assert.False(t, SafeBoolDefault(false, true))
}

func TestMustString_PanicsOnMismatch(t *testing.T) {
	assert.Equal(t, "ok", MustString("ok", "test"))
	assert.Panics(t, func() { MustString(42, "test") })
}

func TestGetNestedValue_WalksDottedPath(t *testing.T) {
	data := map[string]any{
		"providers": map[string]any{
			"openai": map[string]any{
				"api_key": "sk-test",
			},
		},
	}

	v, ok := GetNestedValue(data, "providers.openai.api_key")
	assert.True(t, ok)
	assert.Equal(t, "sk-test", v)

	_, ok = GetNestedValue(data, "providers.anthropic.api_key")
	assert.False(t, ok)

	_, ok = GetNestedValue(nil, "providers.openai.api_key")
	assert.False(t, ok)

	_, ok = GetNestedValue(data, "")
	assert.False(t, ok)
}

func TestGetNestedString_NarrowsToString(t *testing.T) {
	data := map[string]any{"limits": map[string]any{"max_tokens": 4096}}

	_, ok := GetNestedString(data, "limits.max_tokens")
	assert.False(t, ok, "max_tokens is a number, not a string")

	data["name"] = map[string]any{"model": "gpt-4o"}
	s, ok := GetNestedString(data, "name.model")
	assert.True(t, ok)
	assert.Equal(t, "gpt-4o", s)
}
