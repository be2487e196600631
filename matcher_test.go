package routestate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routestate/routestate/query"
)

func newTestTree(t *testing.T) *RouteTree {
	t.Helper()
	tree, err := NewRouteTree([]RouteDefinition{
		{Name: "home", Path: "/"},
		{Name: "about", Path: "/about"},
		{Name: "user", Path: "/user/:id", Children: []RouteDefinition{
			{Name: "profile", Path: "/profile"},
		}},
		{Name: "search", Path: "/search?q&page=1"},
		{Name: "docs", Path: "/docs/*rest"},
	}, TreeOptions{})
	require.NoError(t, err)
	return tree
}

func TestMatchStaticRoute(t *testing.T) {
	m := NewMatcher(newTestTree(t), query.New())
	res, err := m.Match("/about", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "about", res.FullName)
}

func TestMatchHomeRoute(t *testing.T) {
	m := NewMatcher(newTestTree(t), query.New())
	res, err := m.Match("/", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "home", res.FullName)
}

func TestMatchURLParam(t *testing.T) {
	m := NewMatcher(newTestTree(t), query.New())
	res, err := m.Match("/user/42", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "user", res.FullName)
	assert.Equal(t, "42", res.Params["id"])
}

func TestMatchNestedChild(t *testing.T) {
	m := NewMatcher(newTestTree(t), query.New())
	res, err := m.Match("/user/42/profile", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "user.profile", res.FullName)
	assert.Equal(t, "42", res.Params["id"])
}

func TestMatchSplat(t *testing.T) {
	m := NewMatcher(newTestTree(t), query.New())
	res, err := m.Match("/docs/a/b/c", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "docs", res.FullName)
	assert.Equal(t, "a/b/c", res.Params["rest"])
}

func TestMatchQueryParams(t *testing.T) {
	m := NewMatcher(newTestTree(t), query.New())
	res, err := m.Match("/search?q=go&page=2", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "go", res.Params["q"])
	assert.Equal(t, "2", res.Params["page"])
}

func TestMatchNoMatchReturnsNilNil(t *testing.T) {
	m := NewMatcher(newTestTree(t), query.New())
	res, err := m.Match("/does/not/exist/at/all", MatchOptions{})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestMatchStrictQueryParamsRejectsUnknown(t *testing.T) {
	m := NewMatcher(newTestTree(t), query.New())
	res, err := m.Match("/about?bogus=1", MatchOptions{StrictQueryParams: true})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestMatchRootPathStripped(t *testing.T) {
	m := NewMatcher(newTestTree(t), query.New())
	m.SetRootPath("/app")
	res, err := m.Match("/app/about", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "about", res.FullName)
}

func TestMatchRootPathMismatchReturnsNil(t *testing.T) {
	m := NewMatcher(newTestTree(t), query.New())
	m.SetRootPath("/app")
	res, err := m.Match("/other/about", MatchOptions{})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestMatchRejectsNonPrintableASCII(t *testing.T) {
	m := NewMatcher(newTestTree(t), query.New())
	_, err := m.Match("/about\x01", MatchOptions{})
	require.Error(t, err)
}

func TestHasRoute(t *testing.T) {
	m := NewMatcher(newTestTree(t), query.New())
	assert.True(t, m.HasRoute("user.profile"))
	assert.False(t, m.HasRoute("nope"))
}

func TestMatchAbsoluteSubrouteIgnoresParentPrefix(t *testing.T) {
	tree, err := NewRouteTree([]RouteDefinition{
		{Name: "users", Path: "/users", Children: []RouteDefinition{
			{Name: "admin", Path: "~/admin"},
		}},
	}, TreeOptions{})
	require.NoError(t, err)
	m := NewMatcher(tree, query.New())

	res, err := m.Match("/admin", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "users.admin", res.FullName)

	res, err = m.Match("/users/admin", MatchOptions{})
	require.NoError(t, err)
	assert.Nil(t, res, "an absolute subroute must not be reachable through its parent's prefix")
}

func TestMatchRejectsInvalidPercentTriple(t *testing.T) {
	m := NewMatcher(newTestTree(t), query.New())
	res, err := m.Match("/user/%zz", MatchOptions{})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestMatchLegacyEncodingPassesInvalidPercentThrough(t *testing.T) {
	tree, err := NewRouteTree([]RouteDefinition{
		{Name: "user", Path: "/user/:id"},
	}, TreeOptions{Encoding: EncodingByName("legacy")})
	require.NoError(t, err)
	m := NewMatcher(tree, query.New())
	res, err := m.Match("/user/%zz", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "%zz", res.Params["id"])
}

func TestMatchQueryParamDeclaredOnAncestorSegment(t *testing.T) {
	tree, err := NewRouteTree([]RouteDefinition{
		{Name: "search", Path: "/search?q", Children: []RouteDefinition{
			{Name: "results", Path: "/results"},
		}},
	}, TreeOptions{})
	require.NoError(t, err)
	m := NewMatcher(tree, query.New())
	res, err := m.Match("/search/results?q=hi", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "search.results", res.FullName)
	assert.Equal(t, "hi", res.Params["q"])
}

func TestMatchOptionalParamPresentAndAbsent(t *testing.T) {
	tree, err := NewRouteTree([]RouteDefinition{
		{Name: "users", Path: "/users/:id?"},
	}, TreeOptions{})
	require.NoError(t, err)
	m := NewMatcher(tree, query.New())

	res, err := m.Match("/users/42", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "42", res.Params["id"])

	res, err = m.Match("/users", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	_, present := res.Params["id"]
	assert.False(t, present)
}

func TestMatchCaseInsensitiveStaticSegmentByDefault(t *testing.T) {
	m := NewMatcher(newTestTree(t), query.New())
	res, err := m.Match("/About", MatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "about", res.FullName)
}

func TestMatchCaseSensitiveTreeRejectsWrongCase(t *testing.T) {
	tree, err := NewRouteTree([]RouteDefinition{
		{Name: "about", Path: "/about"},
	}, TreeOptions{CaseSensitive: true})
	require.NoError(t, err)
	m := NewMatcher(tree, query.New())
	res, err := m.Match("/About", MatchOptions{})
	require.NoError(t, err)
	assert.Nil(t, res)
}
