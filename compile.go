package routestate

import (
	"fmt"
	"regexp"
	"strings"
)

// ParamLocation tags where a declared parameter is read from.
type ParamLocation string

const (
	ParamLocationURL   ParamLocation = "url"
	ParamLocationQuery ParamLocation = "query"
)

// ParamMeta is the per-route parameter metadata.
type ParamMeta struct {
	URLParams     []string // order preserved as they appear in the pattern
	SplatParams   []string
	QueryParams   []string
	ParamLocation map[string]ParamLocation
	Constraints   map[string]*regexp.Regexp // anchored ^constraint$
	PlainPath     string                    // path pattern without the query suffix
}

// CompiledPathPattern is the alternating static/param sequence buildPath walks.
// Invariant: len(StaticParts) == len(ParamNames) + 1.
type CompiledPathPattern struct {
	StaticParts []string
	ParamNames  []string
}

// CompiledRoute is everything the path compiler produces for one route pattern.
type CompiledRoute struct {
	Pattern       string
	PathTokens    []Token
	QueryTokens   []QueryToken
	Meta          ParamMeta
	BuildTemplate CompiledPathPattern
	SourceRegex   string
	matchNoSlash  *regexp.Regexp
	matchSlash    *regexp.Regexp // admits one optional trailing slash
	prefixRegex   *regexp.Regexp // anchored at start only, for descent matching
	CaseSensitive bool
	Encoding      EncodingStrategy
}

// CompileOptions configures how a pattern is compiled.
type CompileOptions struct {
	CaseSensitive bool
	Encoding      EncodingStrategy // nil defaults to DefaultEncoding
}

// Compile tokenizes and compiles a full pattern (path plus optional query
// tail) into matching and building machinery.
func Compile(pattern string, opts CompileOptions) (*CompiledRoute, error) {
	if opts.Encoding == nil {
		opts.Encoding = DefaultEncoding
	}
	pathPart, queryTail := SplitPatternAndQuery(pattern)
	tokens, err := Tokenize(pathPart)
	if err != nil {
		return nil, err
	}
	queryTokens := TokenizeQuery(queryTail)

	cr := &CompiledRoute{
		Pattern:       pattern,
		PathTokens:    tokens,
		QueryTokens:   queryTokens,
		CaseSensitive: opts.CaseSensitive,
		Encoding:      opts.Encoding,
	}
	cr.Meta = buildParamMeta(pathPart, tokens, queryTokens)
	cr.BuildTemplate = buildTemplate(tokens)
	cr.SourceRegex = buildSourceRegex(tokens)

	flags := ""
	if !opts.CaseSensitive {
		flags = "(?i)"
	}
	cr.matchNoSlash = regexp.MustCompile(flags + "^" + cr.SourceRegex + "$")
	cr.matchSlash = regexp.MustCompile(flags + "^" + cr.SourceRegex + "/?$")
	cr.prefixRegex = regexp.MustCompile(flags + "^" + cr.SourceRegex)
	return cr, nil
}

// MatchRegex returns the compiled match regex, honoring strictTrailingSlash.
func (cr *CompiledRoute) MatchRegex(strictTrailingSlash bool) *regexp.Regexp {
	if strictTrailingSlash {
		return cr.matchNoSlash
	}
	return cr.matchSlash
}

// unanchoredRegex is used during tree descent to determine how much of the
// remaining URL this node's own pattern consumes, without requiring it to
// reach the end of the string.
func (cr *CompiledRoute) unanchoredRegex() *regexp.Regexp { return cr.prefixRegex }

func buildParamMeta(plainPath string, tokens []Token, queryTokens []QueryToken) ParamMeta {
	meta := ParamMeta{
		ParamLocation: make(map[string]ParamLocation),
		Constraints:   make(map[string]*regexp.Regexp),
		PlainPath:     plainPath,
	}
	for _, t := range tokens {
		switch t.Kind {
		case TokenURLParam, TokenURLParamMatrix:
			meta.URLParams = append(meta.URLParams, t.Name)
			meta.ParamLocation[t.Name] = ParamLocationURL
			body := t.Constraint
			if body == "" {
				body = defaultURLConstraint
			}
			meta.Constraints[t.Name] = regexp.MustCompile("^" + body + "$")
		case TokenURLParamSplat:
			meta.SplatParams = append(meta.SplatParams, t.Name)
			meta.URLParams = append(meta.URLParams, t.Name)
			meta.ParamLocation[t.Name] = ParamLocationURL
			meta.Constraints[t.Name] = regexp.MustCompile("^" + defaultSplatConstraint + "$")
		}
	}
	for _, qt := range queryTokens {
		meta.QueryParams = append(meta.QueryParams, qt.Name)
		meta.ParamLocation[qt.Name] = ParamLocationQuery
	}
	return meta
}

// buildTemplate interleaves static text with param slots for building URLs.
// Matrix-param separators (";name=") are pre-baked into the static part that
// immediately precedes their value slot.
func buildTemplate(tokens []Token) CompiledPathPattern {
	var tmpl CompiledPathPattern
	var acc strings.Builder
	for _, t := range tokens {
		switch t.Kind {
		case TokenURLParam, TokenURLParamSplat:
			tmpl.StaticParts = append(tmpl.StaticParts, acc.String())
			acc.Reset()
			tmpl.ParamNames = append(tmpl.ParamNames, t.Name)
		case TokenURLParamMatrix:
			acc.WriteString(";")
			acc.WriteString(t.Name)
			acc.WriteString("=")
			tmpl.StaticParts = append(tmpl.StaticParts, acc.String())
			acc.Reset()
			tmpl.ParamNames = append(tmpl.ParamNames, t.Name)
		default:
			acc.WriteString(t.Match)
		}
	}
	tmpl.StaticParts = append(tmpl.StaticParts, acc.String())
	return tmpl
}

func buildSourceRegex(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Regex)
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// BuildOptions configures buildPath/BuildURL behavior.
type BuildOptions struct {
	IgnoreConstraints bool
	IgnoreSearch      bool
}

// Build constructs a URL for this single compiled route given param values
// (both URL/splat/matrix and query params may be present in the same map;
// query params are filtered by Meta.QueryParams).
func (cr *CompiledRoute) Build(params map[string]any, query QueryCodec, opts BuildOptions) (string, error) {
	missing := []string{}
	for _, name := range cr.Meta.URLParams {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", newErr(ErrCodeMissingParameters, "", "requires missing parameters %v", missing)
	}

	var b strings.Builder
	tmpl := cr.BuildTemplate
	for i, name := range tmpl.ParamNames {
		b.WriteString(tmpl.StaticParts[i])
		raw := stringifyParam(params[name])

		isSplat := false
		for _, sp := range cr.Meta.SplatParams {
			if sp == name {
				isSplat = true
				break
			}
		}
		var encoded string
		if isSplat {
			encoded = encodeSplat(cr.Encoding, raw)
		} else {
			encoded = cr.Encoding.Encode(raw)
		}

		// The constraint must hold for the value as it will appear in the
		// URL, so it is checked post-encoding.
		if !opts.IgnoreConstraints {
			if re, ok := cr.Meta.Constraints[name]; ok && !re.MatchString(encoded) {
				return "", newErr(ErrCodeConstraintViolation, "",
					"Parameter %s of '%s' has invalid format: got '%s', expected to match '%s'",
					name, cr.Pattern, encoded, re.String())
			}
		}
		b.WriteString(encoded)
	}
	b.WriteString(tmpl.StaticParts[len(tmpl.StaticParts)-1])

	if !opts.IgnoreSearch && len(cr.Meta.QueryParams) > 0 && query != nil {
		qvals := make(map[string]any)
		for _, qn := range cr.Meta.QueryParams {
			if v, ok := params[qn]; ok {
				qvals[qn] = v
			}
		}
		if len(qvals) > 0 {
			qs := query.Build(qvals)
			if qs != "" {
				b.WriteString("?")
				b.WriteString(qs)
			}
		}
	}
	return b.String(), nil
}

func stringifyParam(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
