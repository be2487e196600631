package routestate

import (
	"regexp"
	"sort"
	"strings"
)

// RouteDefinition is the external route-registration input.
type RouteDefinition struct {
	Name          string
	Path          string
	Children      []RouteDefinition
	DefaultParams map[string]any
	ForwardTo     string
	Encoding      EncodingStrategy // nil: inherit DefaultEncoding
	Extras        map[string]any   // passthrough, not interpreted by the core
}

// RouteNode is one node of the immutable RouteTree.
type RouteNode struct {
	SegmentName         string
	FullName            string
	RawPath             string
	Absolute            bool
	Children            map[string]*RouteNode
	childrenOrdered     []*RouteNode // insertion order, authoritative for sorting
	NonAbsoluteChildren []*RouteNode // sorted, used during matching descent
	Compiled            *CompiledRoute
	StaticPath          string // non-empty only when the root-to-node chain has zero params
	HasStaticPath       bool
	DefaultParams       map[string]any
	ForwardTo           string
	Parent              *RouteNode
	order               int // global insertion sequence, used as the final priority tie-break
	staticIndex         map[string][]*RouteNode
	dynamicChildren     []*RouteNode
	sortedAll           []*RouteNode
}

// RouteTree is the immutable, frozen tree produced by NewRouteTree.
//
// Immutability:
// Once built, a tree is never mutated; nodes, sort orders, and caches are
// fixed at construction. Matchers and routers hold the tree by reference
// and never write through it, so one tree may back any number of them.
//
// Fields:
//   - Root: The synthetic root node (empty segmentName and path)
//   - CaseSensitive: Whether pattern matching distinguishes letter case
//   - Encoding: The strategy applied to parameter values tree-wide
type RouteTree struct {
	Root          *RouteNode
	byFullName    map[string]*RouteNode
	absPaths      map[string]bool
	CaseSensitive bool
	Encoding      EncodingStrategy
	skipSort      bool
}

// TreeOptions configures tree construction.
type TreeOptions struct {
	CaseSensitive bool
	Encoding      EncodingStrategy
	SkipSort      bool
	SkipFreeze    bool // retained for API parity; the tree is always read-only once built
}

var namePattern = regexp.MustCompile(`^(@@[\w/-]+|[A-Za-z0-9_][A-Za-z0-9_-]*(\.[A-Za-z0-9_][A-Za-z0-9_-]*)*)$`)

// NewRouteTree validates and builds an immutable RouteTree from a batch of
// route definitions.
//
// Hierarchy may be declared either by nesting Children or by dot-notation
// names ("users.profile"); in both forms a parent must exist before its
// children. Name syntax, path syntax and duplicate sibling paths are
// validated for every definition before any node is built; duplicate
// fullNames, duplicate absolute paths, missing parents and absolute
// children under parameterized parents are rejected as each node is
// inserted. Each node's children are then sorted by routing priority, and
// per-node caches
// (static-prefix index, parameter metadata, param-free static paths) are
// precomputed.
//
// Parameters:
//   - defs: The route definitions, in registration order
//   - opts: Tree-wide behavior (CaseSensitive, Encoding, SkipSort, SkipFreeze)
//
// Returns:
//   - *RouteTree: The frozen tree, ready to share across matchers and routers
//   - error: An *Error with Code InvalidRoute, DuplicateRoute, or
//     MissingParent describing the first definition rejected
//
// Example:
//
//	tree, err := NewRouteTree([]RouteDefinition{
//		{Name: "home", Path: "/"},
//		{Name: "users", Path: "/users", Children: []RouteDefinition{
//			{Name: "profile", Path: "/:id"},
//		}},
//	}, TreeOptions{})
//
// Thread Safety:
// The returned tree is never mutated after construction and is safe for
// concurrent reads from any number of matchers and routers.
func NewRouteTree(defs []RouteDefinition, opts TreeOptions) (*RouteTree, error) {
	if opts.Encoding == nil {
		opts.Encoding = DefaultEncoding
	}
	t := &RouteTree{
		Root: &RouteNode{
			SegmentName: "",
			FullName:    "",
			Children:    make(map[string]*RouteNode),
		},
		byFullName:    make(map[string]*RouteNode),
		absPaths:      make(map[string]bool),
		CaseSensitive: opts.CaseSensitive,
		Encoding:      opts.Encoding,
		skipSort:      opts.SkipSort,
	}
	t.byFullName[""] = t.Root

	flat, err := flattenDefs(defs, "")
	if err != nil {
		return nil, err
	}
	for _, fd := range flat {
		if err := t.insert(fd); err != nil {
			return nil, err
		}
	}

	if !opts.SkipSort {
		t.sortChildren(t.Root)
	} else {
		t.populateUnsorted(t.Root)
	}
	t.mergeAbsoluteRoutes(opts.SkipSort)
	t.computeCaches(t.Root, "", true)
	t.buildStaticIndexes(t.Root)
	return t, nil
}

type flatDef struct {
	name   string
	parent string
	def    RouteDefinition
}

// flattenDefs expands dot-notation and nested Children into a single ordered
// list, validating names, paths, duplicates. Parents must precede children.
func flattenDefs(defs []RouteDefinition, parentPrefix string) ([]flatDef, error) {
	var out []flatDef
	seenSibling := make(map[string]bool)
	for _, d := range defs {
		if d.Name == "" || len(d.Name) > 10000 || !namePattern.MatchString(d.Name) {
			return nil, newErr(ErrCodeInvalidRoute, d.Name, "invalid route name %q", d.Name)
		}
		if err := validatePath(d.Path); err != nil {
			return nil, err
		}
		fullName := d.Name
		if parentPrefix != "" {
			fullName = parentPrefix + "." + d.Name
		}
		if seenSibling[d.Path] {
			return nil, newErr(ErrCodeDuplicateRoute, fullName, "duplicate sibling path %q", d.Path)
		}
		seenSibling[d.Path] = true

		out = append(out, flatDef{name: fullName, parent: parentPrefix, def: d})
		if len(d.Children) > 0 {
			children, err := flattenDefs(d.Children, fullName)
			if err != nil {
				return nil, err
			}
			out = append(out, children...)
		}
	}
	return out, nil
}

func validatePath(path string) error {
	if strings.ContainsAny(path, " \t\n\r") {
		return newErr(ErrCodeInvalidRoute, "", "path %q must not contain whitespace", path)
	}
	if strings.Contains(path, "//") {
		return newErr(ErrCodeInvalidRoute, "", "path %q must not contain '//'", path)
	}
	return nil
}

// insert places one flattened definition into the tree, expanding dot
// notation by resolving its parent (which must already exist).
func (t *RouteTree) insert(fd flatDef) error {
	name := fd.name
	path := fd.def.Path
	absolute := strings.HasPrefix(path, "~/")

	var parent *RouteNode
	parentFull := fd.parent
	// For explicitly-nested Children, fd.parent is the immediate parent's
	// fullName. For dot-notation names given flat (no Children nesting),
	// the parent is everything up to the last '.'.
	if idx := strings.LastIndex(name, "."); idx >= 0 && parentFull == "" {
		parentFull = name[:idx]
	}
	if parentFull == "" {
		parent = t.Root
	} else {
		p, ok := t.byFullName[parentFull]
		if !ok {
			return newErr(ErrCodeMissingParent, name, "parent route %q must exist before child %q", parentFull, name)
		}
		parent = p
	}

	if _, exists := t.byFullName[name]; exists {
		return newErr(ErrCodeDuplicateRoute, name, "duplicate route fullName %q", name)
	}
	if absolute {
		if t.absPaths[path] {
			return newErr(ErrCodeDuplicateRoute, name, "duplicate absolute path %q", path)
		}
		t.absPaths[path] = true
	}
	if absolute && len(parent.Compiled.urlParamsInclAncestors()) > 0 {
		return newErr(ErrCodeInvalidRoute, name, "absolute path %q not allowed as child of a route with URL parameters", path)
	}

	segmentName := name
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		segmentName = name[idx+1:]
	}

	rawForCompile := path
	if absolute {
		rawForCompile = path[1:] // strip leading '~', keep leading '/'
	}
	compiled, err := Compile(rawForCompile, CompileOptions{CaseSensitive: t.CaseSensitive, Encoding: pickEncoding(fd.def.Encoding, t.Encoding)})
	if err != nil {
		return err
	}

	node := &RouteNode{
		SegmentName:   segmentName,
		FullName:      name,
		RawPath:       path,
		Absolute:      absolute,
		Children:      make(map[string]*RouteNode),
		Compiled:      compiled,
		DefaultParams: fd.def.DefaultParams,
		ForwardTo:     fd.def.ForwardTo,
		Parent:        parent,
		order:         len(t.byFullName),
	}
	parent.Children[segmentName] = node
	parent.childrenOrdered = append(parent.childrenOrdered, node)
	t.byFullName[name] = node
	return nil
}

func pickEncoding(routeLevel, fallback EncodingStrategy) EncodingStrategy {
	if routeLevel != nil {
		return routeLevel
	}
	return fallback
}

// urlParamsInclAncestors returns this route's own URL parameter names, or nil
// for the synthetic root (whose Compiled is nil). Ancestors' parameters are
// not included; callers that need them walk the chain.
func (cr *CompiledRoute) urlParamsInclAncestors() []string {
	if cr == nil {
		return nil
	}
	return cr.Meta.URLParams
}

// sortChildren applies the routing priority order recursively.
func (t *RouteTree) sortChildren(node *RouteNode) {
	children := make([]*RouteNode, 0, len(node.childrenOrdered))
	for _, c := range node.childrenOrdered {
		children = append(children, c)
		t.sortChildren(c)
	}
	sort.SliceStable(children, func(i, j int) bool {
		return priorityLess(children[j], children[i]) // descending priority
	})
	node.NonAbsoluteChildren = nil
	for _, c := range children {
		if !c.Absolute {
			node.NonAbsoluteChildren = append(node.NonAbsoluteChildren, c)
		}
	}
	// rebuild the children map's insertion isn't semantically significant;
	// keep NonAbsoluteChildren as the canonical sorted order for matching.
	node.sortedAll = children
}

// mergeAbsoluteRoutes makes every absolute subroute anywhere in the tree
// reachable directly from the root during matching: an absolute
// child is excluded from its own parent's NonAbsoluteChildren (so it is
// never reached through the parent's prefix) but is otherwise matched
// exactly like a top-level route, competing on the same priority order.
func (t *RouteTree) mergeAbsoluteRoutes(skipSort bool) {
	var absolutes []*RouteNode
	var collect func(n *RouteNode)
	collect = func(n *RouteNode) {
		for _, c := range n.childrenOrdered {
			if c.Absolute {
				absolutes = append(absolutes, c)
			}
			collect(c)
		}
	}
	collect(t.Root)
	if len(absolutes) == 0 {
		return
	}
	merged := append(append([]*RouteNode{}, t.Root.NonAbsoluteChildren...), absolutes...)
	if !skipSort {
		sort.SliceStable(merged, func(i, j int) bool {
			return priorityLess(merged[j], merged[i])
		})
	}
	t.Root.NonAbsoluteChildren = merged
}

// populateUnsorted fills NonAbsoluteChildren in insertion order when sorting
// is skipped (SkipSort option).
func (t *RouteTree) populateUnsorted(node *RouteNode) {
	for _, c := range node.childrenOrdered {
		if !c.Absolute {
			node.NonAbsoluteChildren = append(node.NonAbsoluteChildren, c)
		}
		t.populateUnsorted(c)
	}
}

// priorityLess reports whether a has strictly lower routing priority than b
// (i.e. a should sort after b), per the six routing tie-break rules.
func priorityLess(a, b *RouteNode) bool {
	aSlash := isSlashOnly(a.RawPath)
	bSlash := isSlashOnly(b.RawPath)
	if aSlash != bSlash {
		return aSlash // a (the slash route) sorts last => "less priority"
	}
	aSplat := len(a.Compiled.Meta.SplatParams) > 0
	bSplat := len(b.Compiled.Meta.SplatParams) > 0
	if aSplat != bSplat {
		return aSplat
	}
	aSeg, bSeg := countSegments(a.RawPath), countSegments(b.RawPath)
	if aSeg != bSeg {
		return aSeg < bSeg // more segments sorts first => fewer is "less"
	}
	aParams, bParams := len(a.Compiled.Meta.URLParams), len(b.Compiled.Meta.URLParams)
	if aParams != bParams {
		return aParams > bParams // fewer params sorts first => more is "less"
	}
	aLast, bLast := lastSegmentLen(a.RawPath), lastSegmentLen(b.RawPath)
	if aLast != bLast {
		return aLast < bLast // longer last segment sorts first
	}
	return a.order > b.order // original definition order, stable
}

func isSlashOnly(path string) bool {
	p := path
	p = strings.TrimPrefix(p, "~")
	return p == "/"
}

// countSegments counts '/'-delimited parts after stripping constraint bodies
// and the query suffix.
func countSegments(path string) int {
	p, _ := SplitPatternAndQuery(path)
	p = stripConstraints(p)
	p = strings.TrimPrefix(p, "~")
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		return 0
	}
	return len(parts)
}

func lastSegmentLen(path string) int {
	p, _ := SplitPatternAndQuery(path)
	p = stripConstraints(p)
	p = strings.TrimRight(p, "/")
	idx := strings.LastIndex(p, "/")
	return len(p[idx+1:])
}

func stripConstraints(s string) string {
	var b strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteByte(s[i])
			}
		}
	}
	return b.String()
}

// computeCaches fills fullName-derived caches: paramTypeMap is already on
// Compiled.Meta; here we compute StaticPath for param-free root-to-node chains.
func (t *RouteTree) computeCaches(node *RouteNode, accumulatedStatic string, isRoot bool) {
	static := accumulatedStatic
	hasParams := false
	if !isRoot {
		if node.Absolute {
			static = ""
		}
		if len(node.Compiled.Meta.URLParams) > 0 || len(node.Compiled.Meta.QueryParams) > 0 {
			hasParams = true
		} else {
			static = appendStaticPath(static, node.Compiled.BuildTemplate.StaticParts[0])
		}
		node.HasStaticPath = !hasParams && !parentHasParams(node.Parent)
		if node.HasStaticPath {
			node.StaticPath = static
		}
	}
	for _, c := range node.Children {
		t.computeCaches(c, static, false)
	}
}

func parentHasParams(n *RouteNode) bool {
	for cur := n; cur != nil && cur.FullName != ""; cur = cur.Parent {
		if len(cur.Compiled.Meta.URLParams) > 0 || len(cur.Compiled.Meta.QueryParams) > 0 {
			return true
		}
	}
	return false
}

func appendStaticPath(prefix, seg string) string {
	if seg == "" {
		return prefix
	}
	if strings.HasPrefix(seg, "/") {
		return prefix + seg
	}
	return prefix + seg
}

// buildStaticIndexes computes, for every node, a map from the literal first
// path segment of each child's pattern to the ordered list of children
// beginning with it. Children with a dynamic first segment are
// excluded and placed in the dynamic fallback list instead.
func (t *RouteTree) buildStaticIndexes(node *RouteNode) {
	node.staticIndex = make(map[string][]*RouteNode)
	node.dynamicChildren = nil
	for _, c := range node.NonAbsoluteChildren {
		lit, dynamic := firstSegmentLiteral(c.RawPath)
		if dynamic {
			node.dynamicChildren = append(node.dynamicChildren, c)
		} else {
			if !t.CaseSensitive {
				lit = strings.ToLower(lit)
			}
			node.staticIndex[lit] = append(node.staticIndex[lit], c)
		}
	}
	for _, c := range node.Children {
		t.buildStaticIndexes(c)
	}
}

// firstSegmentLiteral returns the literal text of a pattern's first segment,
// or dynamic=true if that segment starts with ':', '*' or is empty.
func firstSegmentLiteral(path string) (lit string, dynamic bool) {
	p := strings.TrimPrefix(path, "~")
	p = strings.TrimPrefix(p, "/")
	pathOnly, _ := SplitPatternAndQuery(p)
	end := strings.IndexByte(pathOnly, '/')
	var seg string
	if end < 0 {
		seg = pathOnly
	} else {
		seg = pathOnly[:end]
	}
	if seg == "" || seg[0] == ':' || seg[0] == '*' {
		return "", true
	}
	return stripConstraints(seg), false
}

// ByName looks up a node by its dot-joined fullName.
func (t *RouteTree) ByName(name string) (*RouteNode, bool) {
	n, ok := t.byFullName[name]
	return n, ok
}

// Chain returns the root-to-node list of ancestors (excluding the synthetic
// root), in order.
func (t *RouteTree) Chain(name string) ([]*RouteNode, bool) {
	n, ok := t.byFullName[name]
	if !ok {
		return nil, false
	}
	var chain []*RouteNode
	for cur := n; cur != nil && cur.FullName != ""; cur = cur.Parent {
		chain = append([]*RouteNode{cur}, chain...)
	}
	return chain, true
}
