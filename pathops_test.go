package routestate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routestate/routestate/query"
)

func TestBuildPathStaticFastPath(t *testing.T) {
	tree := newTestTree(t)
	out, err := BuildPath(tree, query.New(), "about", nil, PathOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/about", out)
}

func TestBuildPathWithParam(t *testing.T) {
	tree := newTestTree(t)
	out, err := BuildPath(tree, query.New(), "user", map[string]any{"id": "7"}, PathOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/user/7", out)
}

func TestBuildPathNestedChild(t *testing.T) {
	tree := newTestTree(t)
	out, err := BuildPath(tree, query.New(), "user.profile", map[string]any{"id": "7"}, PathOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/user/7/profile", out)
}

func TestBuildPathUnknownRoute(t *testing.T) {
	tree := newTestTree(t)
	_, err := BuildPath(tree, query.New(), "nope", nil, PathOptions{})
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, ErrCodeRouteNotFound, rerr.Code)
}

func TestBuildPathAbsoluteSubrouteDiscardsParentPrefix(t *testing.T) {
	tree, err := NewRouteTree([]RouteDefinition{
		{Name: "users", Path: "/users", Children: []RouteDefinition{
			{Name: "admin", Path: "~/admin"},
		}},
	}, TreeOptions{})
	require.NoError(t, err)
	out, err := BuildPath(tree, query.New(), "users.admin", nil, PathOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/admin", out)
}

func TestBuildPathThenMatchPathRoundTrip(t *testing.T) {
	tree := newTestTree(t)
	q := query.New()
	m := NewMatcher(tree, q)

	built, err := BuildPath(tree, q, "user.profile", map[string]any{"id": "99"}, PathOptions{})
	require.NoError(t, err)

	res, err := MatchPath(m, built)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "user.profile", res.FullName)
	assert.Equal(t, "99", res.Params["id"])
}
