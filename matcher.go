package routestate

import (
	"strings"

	defaultquery "github.com/routestate/routestate/query"
)

// MatchOptions configures a single Match call.
type MatchOptions struct {
	StrictTrailingSlash bool
	StrictQueryParams   bool // unknown query params reject the match
	IncludeUnknownQuery bool // when not strict, surface unknown query params too
}

// MatchResult is the immutable record returned by a successful match.
type MatchResult struct {
	Segments []*RouteNode
	Params   map[string]any
	FullName string
}

// Matcher wraps an immutable RouteTree with a root-path prefix and an
// injected query codec.
type Matcher struct {
	Tree     *RouteTree
	RootPath string
	Query    QueryCodec
}

// NewMatcher constructs a Matcher. A nil QueryCodec defaults to the query
// package's Codec.
func NewMatcher(tree *RouteTree, query QueryCodec) *Matcher {
	if query == nil {
		query = defaultquery.New()
	}
	return &Matcher{Tree: tree, Query: query}
}

// SetRootPath updates the prefix stripped from incoming URLs before matching.
// Idempotent; empty string disables stripping.
func (m *Matcher) SetRootPath(p string) { m.RootPath = p }

// HasRoute reports whether name is a registered route.
func (m *Matcher) HasRoute(name string) bool {
	_, ok := m.Tree.ByName(name)
	return ok
}

// GetSegmentsByName returns the root-to-leaf node chain for name.
func (m *Matcher) GetSegmentsByName(name string) ([]*RouteNode, bool) {
	return m.Tree.Chain(name)
}

// GetMetaByName returns the leaf's ParamMeta for name.
func (m *Matcher) GetMetaByName(name string) (ParamMeta, bool) {
	n, ok := m.Tree.ByName(name)
	if !ok {
		return ParamMeta{}, false
	}
	return n.Compiled.Meta, true
}

// Match attempts to match url against the tree.
func (m *Matcher) Match(url string, opts MatchOptions) (*MatchResult, error) {
	if m.RootPath != "" {
		if !strings.HasPrefix(url, m.RootPath) {
			return nil, nil
		}
		url = strings.TrimPrefix(url, m.RootPath)
	}
	if url == "" {
		url = "/"
	}
	if url[0] != '/' {
		return nil, nil
	}
	if err := validateASCIIPath(url); err != nil {
		return nil, err
	}

	pathPart, queryTail := splitURLQuery(url)

	var segments []*RouteNode
	params := make(map[string]any)
	matched := m.matchDescend(m.Tree.Root, pathPart, opts, &segments, params)
	if matched == nil {
		return nil, nil
	}

	declared := declaredQueryParams(segments)
	if len(declared) > 0 || queryTail != "" {
		if ok := m.mergeQuery(declared, queryTail, opts, params); !ok {
			return nil, nil
		}
	}

	return &MatchResult{Segments: segments, Params: params, FullName: matched.FullName}, nil
}

func splitURLQuery(url string) (path, query string) {
	if idx := strings.IndexByte(url, '?'); idx >= 0 {
		return url[:idx], url[idx+1:]
	}
	return url, ""
}

func validateASCIIPath(s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return newErr(ErrCodeInvalidRoute, "", "URL contains non-printable-ASCII byte at offset %d", i)
		}
	}
	return nil
}

// matchDescend walks candidates in priority order at one tree level, trying
// the static index first, then the dynamic fallback list. Returns the leaf
// RouteNode on success, appending matched nodes (root to leaf) to *segments
// and merging captured URL params into params.
func (m *Matcher) matchDescend(node *RouteNode, remaining string, opts MatchOptions, segments *[]*RouteNode, params map[string]any) *RouteNode {
	candidates := m.candidateOrder(node, remaining)
	for _, child := range candidates {
		loc := matchPrefix(child.Compiled, remaining, opts.StrictTrailingSlash)
		if loc == nil {
			continue
		}
		decoded, ok := decodeCaptures(child.Compiled, loc.names, loc.values)
		if !ok {
			continue
		}

		rest := remaining[loc.consumed:]
		fullyConsumed := rest == "" || (!opts.StrictTrailingSlash && rest == "/")

		localSegments := append(*segments, child)

		if fullyConsumed {
			leaf := child
			if slashChild := findSlashChild(child); slashChild != nil && rest == "" {
				localSegments = append(localSegments, slashChild)
				leaf = slashChild
			}
			for k, v := range decoded {
				params[k] = v
			}
			*segments = localSegments
			return leaf
		}

		if len(child.NonAbsoluteChildren) > 0 {
			sub := append([]*RouteNode{}, localSegments...)
			if leaf := m.matchDescend(child, rest, opts, &sub, params); leaf != nil {
				for k, v := range decoded {
					params[k] = v
				}
				*segments = sub
				return leaf
			}
		}
	}
	return nil
}

func (m *Matcher) candidateOrder(node *RouteNode, remaining string) []*RouteNode {
	seg, _ := nextSegmentLiteral(remaining)
	if !m.Tree.CaseSensitive {
		seg = strings.ToLower(seg)
	}
	var out []*RouteNode
	if cands, ok := node.staticIndex[seg]; ok {
		out = append(out, cands...)
	}
	out = append(out, node.dynamicChildren...)
	return out
}

// nextSegmentLiteral returns the literal text of the next "/"-delimited
// segment of remaining (without the leading slash), honoring "?" as a
// premature terminator.
func nextSegmentLiteral(remaining string) (string, bool) {
	s := strings.TrimPrefix(remaining, "/")
	if q := strings.IndexByte(s, '?'); q >= 0 {
		s = s[:q]
	}
	if end := strings.IndexByte(s, '/'); end >= 0 {
		return s[:end], false
	}
	return s, true
}

func findSlashChild(node *RouteNode) *RouteNode {
	for _, c := range node.NonAbsoluteChildren {
		if isSlashOnly(c.RawPath) {
			return c
		}
	}
	return nil
}

type prefixMatch struct {
	consumed int
	names    []string
	values   []string
}

// matchPrefix tries a node's own (non-cumulative) pattern against the start
// of remaining, returning how much of remaining it consumed plus captured
// URL parameter names/values, or nil if it does not match at all.
func matchPrefix(cr *CompiledRoute, remaining string, strictTrailingSlash bool) *prefixMatch {
	re := cr.unanchoredRegex()
	loc := re.FindStringSubmatchIndex(remaining)
	if loc == nil || loc[0] != 0 {
		return nil
	}
	consumed := loc[1]
	names := paramNamesInOrder(cr)
	values := make([]string, 0, len(names))
	for i := 1; i*2 < len(loc); i++ {
		if loc[i*2] < 0 {
			values = append(values, "")
			continue
		}
		values = append(values, remaining[loc[i*2]:loc[i*2+1]])
	}
	return &prefixMatch{consumed: consumed, names: names, values: values}
}

func paramNamesInOrder(cr *CompiledRoute) []string {
	var names []string
	for _, t := range cr.PathTokens {
		switch t.Kind {
		case TokenURLParam, TokenURLParamSplat, TokenURLParamMatrix:
			names = append(names, t.Name)
		}
	}
	return names
}

// decodeCaptures decodes a node's captured URL parameter values with its
// encoding strategy. An invalid percent triple rejects the whole candidate;
// the legacy strategy never errors, so its leniency falls out here naturally. Empty captures (an absent optional
// parameter) are skipped.
func decodeCaptures(cr *CompiledRoute, names, values []string) (map[string]any, bool) {
	decoded := make(map[string]any, len(names))
	for i, name := range names {
		raw := values[i]
		if raw == "" {
			continue
		}
		isSplat := false
		for _, s := range cr.Meta.SplatParams {
			if s == name {
				isSplat = true
			}
		}
		var val string
		var err error
		if isSplat {
			val, err = decodeSplat(cr.Encoding, raw)
		} else {
			val, err = cr.Encoding.Decode(raw)
		}
		if err != nil {
			return nil, false
		}
		decoded[name] = val
	}
	return decoded, true
}

// declaredQueryParams collects query parameter names declared anywhere along
// the matched chain, root to leaf, preserving declaration order.
func declaredQueryParams(segments []*RouteNode) []string {
	var out []string
	seen := make(map[string]bool)
	for _, node := range segments {
		for _, qn := range node.Compiled.Meta.QueryParams {
			if !seen[qn] {
				seen[qn] = true
				out = append(out, qn)
			}
		}
	}
	return out
}

// mergeQuery merges the chain's declared query params into params and reports
// whether the match still holds (false only when StrictQueryParams is set
// and an unknown query parameter is present).
func (m *Matcher) mergeQuery(declared []string, queryTail string, opts MatchOptions, params map[string]any) bool {
	parsed := m.Query.Parse(queryTail)
	known := make(map[string]bool, len(declared))
	for _, qn := range declared {
		known[qn] = true
		if v, ok := parsed[qn]; ok {
			params[qn] = v
		}
	}
	for k, v := range parsed {
		if !known[k] {
			if opts.StrictQueryParams {
				return false
			}
			if opts.IncludeUnknownQuery {
				params[k] = v
			}
		}
	}
	return true
}
