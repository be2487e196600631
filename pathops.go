package routestate

import "strings"

// PathOptions configures BuildPath.
type PathOptions struct {
	IgnoreConstraints bool
	IgnoreSearch      bool
}

// BuildPath resolves name to its root-to-leaf chain and concatenates each
// segment's built piece, honoring the absolute flag and the leaf's cached
// staticPath fast path.
func BuildPath(tree *RouteTree, query QueryCodec, name string, params map[string]any, opts PathOptions) (string, error) {
	chain, ok := tree.Chain(name)
	if !ok {
		return "", newErr(ErrCodeRouteNotFound, name, "route %q is not registered", name)
	}
	leaf := chain[len(chain)-1]
	if leaf.HasStaticPath && len(params) == 0 && !opts.IgnoreSearch && !opts.IgnoreConstraints {
		return leaf.StaticPath, nil
	}

	var b strings.Builder
	for _, node := range chain {
		piece, err := node.Compiled.Build(params, nil, BuildOptions{IgnoreConstraints: opts.IgnoreConstraints, IgnoreSearch: true})
		if err != nil {
			return "", wrapErr(err.(*Error).Code, name, err, "%s", err.Error())
		}
		if node.Absolute {
			b.Reset()
		}
		b.WriteString(piece)
	}

	leafBuild, err := leaf.Compiled.Build(params, query, BuildOptions{IgnoreConstraints: true, IgnoreSearch: opts.IgnoreSearch})
	if err != nil {
		return "", err
	}
	if idx := strings.IndexByte(leafBuild, '?'); idx >= 0 {
		b.WriteString(leafBuild[idx:])
	}
	return b.String(), nil
}

// MatchPath delegates to the matcher with default options.
func MatchPath(m *Matcher, url string) (*MatchResult, error) {
	return m.Match(url, MatchOptions{})
}
