package metadata

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	in := map[string]any{
		"name":      "Netlify",
		"cool":      true,
		"functions": []any{"edge", "serverless"},
		"nested":    map[string]any{"count": float64(3)},
	}

	value, err := Encode(in)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(value, "b64;"))

	out, err := Decode(value)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncode_Empty(t *testing.T) {
	value, err := Encode(nil)
	require.NoError(t, err)
	assert.Empty(t, value)

	value, err = Encode(map[string]any{})
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestEncode_TooLarge(t *testing.T) {
	_, err := Encode(map[string]any{"blob": strings.Repeat("a", MaxSize)})
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestDecode_Absent(t *testing.T) {
	out, err := Decode("")
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]string{
		"missing tag":     base64.StdEncoding.EncodeToString([]byte(`{"a":1}`)),
		"bad base64":      "b64;!!!not-base64",
		"bad json":        "b64;" + base64.StdEncoding.EncodeToString([]byte(`{"a":`)),
		"json not object": "b64;" + base64.StdEncoding.EncodeToString([]byte(`[1,2]`)),
		"json null":       "b64;" + base64.StdEncoding.EncodeToString([]byte(`null`)),
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(value)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}
