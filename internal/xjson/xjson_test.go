package xjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKeys(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		data    string
		want    []string
		wantErr bool
	}{
		{"document order", `{"b": 1, "a": {"x": [1, 2]}, "c": null}`, []string{"b", "a", "c"}, false},
		{"duplicates", `{"a": 1, "a": 2}`, []string{"a", "a"}, false},
		{"null", ` null `, nil, false},
		{"empty object", `{}`, nil, false},
		{"array", `[1]`, nil, true},
		{"truncated", `{"a": `, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, err := ObjectKeys([]byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestIndentKeepsNumbersAndOrder(t *testing.T) {
	t.Parallel()
	out, err := Indent([]byte(` {"id":9007199254740993,"z":1,"a":[true]} `), "", "  ")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"id\": 9007199254740993,\n  \"z\": 1,\n  \"a\": [\n    true\n  ]\n}", string(out))

	_, err = Indent([]byte(`{"a":`), "", "  ")
	require.Error(t, err)
}
