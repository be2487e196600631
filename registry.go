package routestate

import (
	"log"
	"sync"
)

// softSlotLimit is a soft cap: exceeding it logs a warning but is never a
// hard error.
const softSlotLimit = 50

// Plugin is the set of recognized lifecycle hooks. Every field is
// optional; a nil field is simply skipped during fan-out.
type Plugin struct {
	OnStart             func(opts NavigationOptions)
	OnStop              func()
	OnTransitionStart   func(to, from *State)
	OnTransitionSuccess func(to, from *State, opts NavigationOptions)
	OnTransitionError   func(to, from *State, err error)
	OnTransitionCancel  func(to, from *State)
	Teardown            func()
}

// GetDependency looks up a dependency by name.
type GetDependency func(name string) (any, bool)

// MiddlewareFactory builds a Middleware bound to a router and its dependency
// accessor.
type MiddlewareFactory func(router *Router, getDependency GetDependency) Middleware

// Middleware runs after all guards on every transition. Returning (nil, nil)
// means proceed; returning a different *State is treated as an intra-pipeline
// redirect; returning an error aborts the transition.
type Middleware func(to, from *State) (*State, error)

// GuardFactory builds a Guard bound to a router and its dependency accessor.
type GuardFactory func(router *Router, getDependency GetDependency) Guard

// Guard authorizes (de)activation of one route segment. Returning (true, nil,
// nil) allows; (false, nil, nil) denies; a non-nil *State redirects.
type Guard func(to, from *State) (allowed bool, redirect *State, err error)

// AlwaysAllow and AlwaysDeny are the constant guard factories: allow every
// transition, deny every transition.
func AlwaysAllow(*Router, GetDependency) Guard {
	return func(*State, *State) (bool, *State, error) { return true, nil, nil }
}
func AlwaysDeny(*Router, GetDependency) Guard {
	return func(*State, *State) (bool, *State, error) { return false, nil, nil }
}

// slot[T] is an append-only, nullable registry entry. A disposer nils out the
// slot in place; indices are never compacted or reused for a different
// registrant.
type slot[T any] struct {
	value T
	empty bool
}

// Registry holds the SM's plugins, middlewares, and per-route guards.
type Registry struct {
	mu            sync.Mutex
	plugins       []slot[*Plugin]
	middlewares   []slot[MiddlewareFactory]
	canActivate   map[string][]slot[GuardFactory]
	canDeactivate map[string][]slot[GuardFactory]
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		canActivate:   make(map[string][]slot[GuardFactory]),
		canDeactivate: make(map[string][]slot[GuardFactory]),
	}
}

// Disposer nils out the slot it was returned for.
type Disposer func()

// AddPlugin registers a plugin's lifecycle hooks.
//
// The plugin occupies a stable slot: disposing it nils the slot without
// shifting later registrants, so hook fan-out order always matches
// registration order. Registering more than softSlotLimit plugins logs a
// warning but never fails.
//
// Parameters:
//   - p: The hook set; nil fields are skipped during fan-out
//
// Returns:
//   - Disposer: Removes the plugin. Its Teardown hook (if any) runs once,
//     and no further hooks are delivered after disposal.
//
// Thread Safety:
// Safe for concurrent use; the registry serializes slot mutation internally.
func (r *Registry) AddPlugin(p *Plugin) Disposer {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := appendSlot(&r.plugins, p)
	if len(r.plugins) > softSlotLimit {
		log.Printf("routestate: plugin count exceeds soft limit of %d", softSlotLimit)
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if p := r.plugins[idx].value; p != nil && p.Teardown != nil {
			p.Teardown()
		}
		r.plugins[idx] = slot[*Plugin]{empty: true}
	}
}

func (r *Registry) AddMiddleware(f MiddlewareFactory) Disposer {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := appendSlot(&r.middlewares, f)
	if len(r.middlewares) > softSlotLimit {
		log.Printf("routestate: middleware count exceeds soft limit of %d", softSlotLimit)
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.middlewares[idx] = slot[MiddlewareFactory]{empty: true}
	}
}

func (r *Registry) AddCanActivate(route string, f GuardFactory) Disposer {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.canActivate[route]
	idx := appendSlot(&s, f)
	r.canActivate[route] = s
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.canActivate[route][idx] = slot[GuardFactory]{empty: true}
	}
}

func (r *Registry) AddCanDeactivate(route string, f GuardFactory) Disposer {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.canDeactivate[route]
	idx := appendSlot(&s, f)
	r.canDeactivate[route] = s
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.canDeactivate[route][idx] = slot[GuardFactory]{empty: true}
	}
}

func appendSlot[T any](s *[]slot[T], v T) int {
	*s = append(*s, slot[T]{value: v})
	return len(*s) - 1
}

func (r *Registry) Plugins() []*Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Plugin, 0, len(r.plugins))
	for _, s := range r.plugins {
		if !s.empty && s.value != nil {
			out = append(out, s.value)
		}
	}
	return out
}

func (r *Registry) Middlewares() []MiddlewareFactory {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MiddlewareFactory, 0, len(r.middlewares))
	for _, s := range r.middlewares {
		if !s.empty {
			out = append(out, s.value)
		}
	}
	return out
}

func (r *Registry) CanActivateFor(route string) []GuardFactory {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []GuardFactory
	for _, s := range r.canActivate[route] {
		if !s.empty {
			out = append(out, s.value)
		}
	}
	return out
}

func (r *Registry) CanDeactivateFor(route string) []GuardFactory {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []GuardFactory
	for _, s := range r.canDeactivate[route] {
		if !s.empty {
			out = append(out, s.value)
		}
	}
	return out
}

// clone returns a fresh Registry with the same live slots (used by Router.Clone).
func (r *Registry) clone() *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := NewRegistry()
	out.plugins = append(out.plugins, r.plugins...)
	out.middlewares = append(out.middlewares, r.middlewares...)
	for k, v := range r.canActivate {
		out.canActivate[k] = append([]slot[GuardFactory]{}, v...)
	}
	for k, v := range r.canDeactivate {
		out.canDeactivate[k] = append([]slot[GuardFactory]{}, v...)
	}
	return out
}

// Dependencies is the mutable keyed container callbacks read through
// GetDependency. Mutations are always allowed; a transition in
// flight only observes dependencies registered before each callback runs,
// since GetDependency reads the live map at call time.
type Dependencies struct {
	mu   sync.RWMutex
	vals map[string]any
}

// NewDependencies constructs an empty container, optionally seeded.
func NewDependencies(seed map[string]any) *Dependencies {
	d := &Dependencies{vals: make(map[string]any, len(seed))}
	for k, v := range seed {
		d.vals[k] = v
	}
	return d
}

func (d *Dependencies) Set(name string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vals[name] = value
}

func (d *Dependencies) SetMany(values map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range values {
		d.vals[k] = v
	}
}

func (d *Dependencies) Remove(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.vals, name)
}

func (d *Dependencies) Reset(values map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vals = make(map[string]any, len(values))
	for k, v := range values {
		d.vals[k] = v
	}
}

func (d *Dependencies) Has(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.vals[name]
	return ok
}

func (d *Dependencies) Get(name string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.vals[name]
	return v, ok
}

// Accessor returns the GetDependency closure handed to guard/middleware/plugin
// factories.
func (d *Dependencies) Accessor() GetDependency {
	return d.Get
}

// Snapshot copies the current dependency map, used by Router.Clone.
func (d *Dependencies) Snapshot() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]any, len(d.vals))
	for k, v := range d.vals {
		out[k] = v
	}
	return out
}
