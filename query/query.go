// Package query provides the default QueryCodec implementation routestate
// falls back to when a host does not inject its own: a small,
// dependency-free codec with stable (sorted) output so built paths are
// deterministic.
package query

import (
	"net/url"
	"sort"
	"strings"
)

// Codec is routestate's default QueryCodec.
type Codec struct{}

// New returns the default Codec.
func New() *Codec { return &Codec{} }

// Parse splits "a=1&a=2&b&c=" into {"a": []string{"1","2"}, "b": nil, "c": ""}.
func (c *Codec) Parse(queryString string) map[string]any {
	result := make(map[string]any)
	if queryString == "" {
		return result
	}
	for _, pair := range strings.Split(queryString, "&") {
		if pair == "" {
			continue
		}
		var name, value string
		hasValue := false
		if eq := strings.IndexByte(pair, '='); eq >= 0 {
			name, value = pair[:eq], pair[eq+1:]
			hasValue = true
		} else {
			name = pair
		}
		name, _ = url.QueryUnescape(name)
		if hasValue {
			value, _ = url.QueryUnescape(value)
		}

		existing, ok := result[name]
		if !ok {
			if hasValue {
				result[name] = value
			} else {
				result[name] = nil
			}
			continue
		}
		switch v := existing.(type) {
		case []string:
			result[name] = append(v, value)
		case string:
			result[name] = []string{v, value}
		case nil:
			result[name] = []string{value}
		}
	}
	return result
}

// Build serializes a map back into a query string, without a leading "?".
// Keys are sorted so output is deterministic across calls.
func (c *Codec) Build(values map[string]any) string {
	if len(values) == 0 {
		return ""
	}
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		switch v := values[name].(type) {
		case nil:
			parts = append(parts, url.QueryEscape(name))
		case string:
			parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(v))
		case []string:
			for _, item := range v {
				parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(item))
			}
		}
	}
	return strings.Join(parts, "&")
}
