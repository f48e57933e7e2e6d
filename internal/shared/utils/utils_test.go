package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasherAlgorithms(t *testing.T) {
	b := NewHasher(BLAKE2b).HashString("koth")
	s := NewHasher(SHA256).HashString("koth")

	assert.Len(t, b, 64)
	assert.Len(t, s, 64)
	assert.NotEqual(t, b, s)
	assert.Equal(t, b, DefaultHasher().HashString("koth"))
}

func TestHashFieldsIgnoresOrder(t *testing.T) {
	h := DefaultHasher()
	assert.Equal(t, h.HashFields("a", "b", "c"), h.HashFields("c", "a", "b"))
	assert.NotEqual(t, h.HashFields("a", "b"), h.HashFields("a", "bc"))
}

func TestHashJSONSortsKeys(t *testing.T) {
	h := DefaultHasher()
	a, err := h.HashJSON(map[string]interface{}{"x": 1, "y": 2})
	require.NoError(t, err)
	b, err := h.HashJSON(map[string]interface{}{"y": 2, "x": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFingerprint(t *testing.T) {
	unix := "function play() {\n  return 1;\n}\n"
	windows := "function play() {  \r\n  return 1;\r\n}\r\n"

	assert.Len(t, Fingerprint(unix), FingerprintLength)
	assert.Equal(t, Fingerprint(unix), Fingerprint(windows))
	assert.NotEqual(t, Fingerprint(unix), Fingerprint("function play() { return 2; }"))
}

func TestValidateEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []EntryFields
		errMsg  string
	}{
		{"valid", []EntryFields{{ID: "red/bot-1", Title: "Bot", Team: "red"}, {ID: "solo"}}, ""},
		{"missing id", []EntryFields{{Title: "x"}}, "id is required"},
		{"bad id", []EntryFields{{ID: "a b"}}, "invalid characters"},
		{"bad team", []EntryFields{{ID: "a", Team: "r e d"}}, "entry a: team"},
		{"long title", []EntryFields{{ID: "a", Title: strings.Repeat("t", MaxTitleLength+1)}}, "title must not exceed"},
		{"huge code", []EntryFields{{ID: "a", Code: strings.Repeat("x", MaxCodeSize+1)}}, "code size"},
		{"duplicate", []EntryFields{{ID: "a"}, {ID: "a"}}, "duplicate entry id a"},
		{"null byte", []EntryFields{{ID: "a", Title: "x\x00"}}, "invalid characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntries(tt.entries)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(map[string]interface{}{"width": 10}, "gameConfig"))

	deep := map[string]interface{}{}
	cur := deep
	for i := 0; i < MaxConfigDepth+2; i++ {
		next := map[string]interface{}{}
		cur["n"] = next
		cur = next
	}
	err := ValidateConfig(deep, "gameConfig")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gameConfig")

	big := map[string]interface{}{"blob": strings.Repeat("x", MaxConfigSize)}
	assert.Error(t, ValidateConfig(big, "playConfig"))
}

func TestJSONSizeValidator(t *testing.T) {
	v := NewJSONSizeValidator(16)
	assert.NoError(t, v.ValidateJSON([]byte(`{"a":1}`)))
	assert.Error(t, v.ValidateJSON([]byte(`{"a":`)))
	assert.Error(t, v.ValidateJSON([]byte(`{"aaaaaaaaaaaaaaaa":1}`)))
}
