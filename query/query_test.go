package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBareName(t *testing.T) {
	c := New()
	got := c.Parse("b")
	assert.Nil(t, got["b"])
	_, ok := got["b"]
	assert.True(t, ok, "bare name must still be present as a key")
}

func TestParseRepeatedNameBecomesSlice(t *testing.T) {
	c := New()
	got := c.Parse("a=1&a=2")
	assert.Equal(t, []string{"1", "2"}, got["a"])
}

func TestParseEmptyValue(t *testing.T) {
	c := New()
	got := c.Parse("c=")
	assert.Equal(t, "", got["c"])
}

func TestParseEmptyString(t *testing.T) {
	c := New()
	got := c.Parse("")
	assert.Empty(t, got)
}

func TestParseURLDecodesNameAndValue(t *testing.T) {
	c := New()
	got := c.Parse("a%20b=c%20d")
	assert.Equal(t, "c d", got["a b"])
}

func TestBuildIsSortedAndDeterministic(t *testing.T) {
	c := New()
	out := c.Build(map[string]any{"b": "2", "a": "1"})
	assert.Equal(t, "a=1&b=2", out)
}

func TestBuildBareNameHasNoEquals(t *testing.T) {
	c := New()
	out := c.Build(map[string]any{"flag": nil})
	assert.Equal(t, "flag", out)
}

func TestBuildRepeatedValues(t *testing.T) {
	c := New()
	out := c.Build(map[string]any{"a": []string{"1", "2"}})
	assert.Equal(t, "a=1&a=2", out)
}

func TestBuildEmptyMap(t *testing.T) {
	c := New()
	assert.Equal(t, "", c.Build(nil))
}

func TestParseBuildRoundTrip(t *testing.T) {
	c := New()
	original := "a=1&a=2&b&c="
	parsed := c.Parse(original)
	rebuilt := c.Build(parsed)
	reparsed := c.Parse(rebuilt)
	assert.Equal(t, parsed, reparsed)
}
