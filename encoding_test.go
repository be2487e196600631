package routestate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodingByName(t *testing.T) {
	assert.Equal(t, "default", EncodingByName("default").Name())
	assert.Equal(t, "uri", EncodingByName("uri").Name())
	assert.Equal(t, "uriComponent", EncodingByName("uriComponent").Name())
	assert.Equal(t, "none", EncodingByName("none").Name())
	assert.Equal(t, "legacy", EncodingByName("legacy").Name())
	assert.Equal(t, "default", EncodingByName("bogus").Name())
}

func TestDefaultEncodingPreservesSubDelimiters(t *testing.T) {
	enc := EncodingByName("default")
	out := enc.Encode("a+b:c")
	assert.Equal(t, "a+b:c", out)
}

func TestDefaultEncodingRoundTrip(t *testing.T) {
	enc := EncodingByName("default")
	for _, v := range []string{"hello world", "a/b", "日本語", "100%"} {
		encoded := enc.Encode(v)
		decoded, err := enc.Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
	}
}

func TestDefaultEncodingRejectsBadPercentTriple(t *testing.T) {
	_, err := EncodingByName("default").Decode("100%zz")
	require.Error(t, err)
}

func TestLegacyEncodingIsLenient(t *testing.T) {
	decoded, err := EncodingByName("legacy").Decode("100%zz")
	require.NoError(t, err)
	assert.Equal(t, "100%zz", decoded)
}

func TestNoneEncodingIsIdentity(t *testing.T) {
	enc := EncodingByName("none")
	assert.Equal(t, "a b/c", enc.Encode("a b/c"))
	decoded, err := enc.Decode("a%20b")
	require.NoError(t, err)
	assert.Equal(t, "a%20b", decoded)
}

func TestEncodeDecodeSplatPreservesSlashes(t *testing.T) {
	enc := EncodingByName("default")
	encoded := encodeSplat(enc, "docs/getting started/intro")
	decoded, err := decodeSplat(enc, encoded)
	require.NoError(t, err)
	assert.Equal(t, "docs/getting started/intro", decoded)
}
