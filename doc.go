// Package routestate implements a named-route URL router: a pattern
// compiler, an immutable route tree with priority-ordered matching, a
// buildPath/matchPath pair, and a cooperative, cancellable navigation state
// machine driven by guards, middlewares and plugin hooks.
//
// The tree is built once via NewRouteTree and is safe to share across
// matchers and routers. A Router owns its own Registry, Dependencies and
// current/pending navigation state; Router.Clone produces a fresh, Idle
// owner sharing the same tree.
package routestate
