package routestate

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	defaultquery "github.com/routestate/routestate/query"
)

// smState is the Router's lifecycle state.
type smState int32

const (
	smIdle smState = iota
	smStarting
	smStarted
	smTransitioning
	smStopped
)

const forwardChainCap = 32

// RouterOptions configures a Router's lifecycle behavior.
type RouterOptions struct {
	DefaultRoute  string
	AllowNotFound bool
}

// CancelToken identifies one in-flight transition for cancellation purposes.
// The uuid gives every transition a stable, loggable identity.
type CancelToken struct {
	id uuid.UUID
}

func newCancelToken() CancelToken { return CancelToken{id: uuid.New()} }

func (t CancelToken) String() string { return t.id.String() }

// pendingTransition tracks one in-flight navigate() call so concurrent
// callers can be deduped or preempted.
type pendingTransition struct {
	token     CancelToken
	target    *State
	from      *State
	cancelled int32
	done      chan struct{}
	result    *State
	err       error
}

func (p *pendingTransition) cancel() {
	atomic.StoreInt32(&p.cancelled, 1)
}

func (p *pendingTransition) isCancelled() bool {
	return atomic.LoadInt32(&p.cancelled) != 0
}

// NavigationHandle is the cancel/await handle returned by Navigate.
type NavigationHandle struct {
	p *pendingTransition
}

// Cancel requests cooperative cancellation of the transition. A no-op if the
// transition already completed.
func (h *NavigationHandle) Cancel() {
	if h == nil || h.p == nil {
		return
	}
	h.p.cancel()
}

// Done reports when the transition has settled (success, error, or cancel).
func (h *NavigationHandle) Done() <-chan struct{} {
	return h.p.done
}

// Wait blocks until the transition settles and returns its outcome.
func (h *NavigationHandle) Wait() (*State, error) {
	<-h.p.done
	return h.p.result, h.p.err
}

// Router is the navigation state machine. It owns a
// shared, immutable RouteTree/Matcher plus its own Registry, Dependencies,
// and current/pending state.
type Router struct {
	tree      *RouteTree
	matcher   *Matcher
	query     QueryCodec
	registry  *Registry
	deps      *Dependencies
	scheduler *taskScheduler
	events    *eventBus
	opts      RouterOptions

	mu           sync.Mutex
	state        smState
	current      *State
	pending      *pendingTransition
	stateCounter uint64
	rootPath     string
}

// NewRouter wires a RouteTree, a QueryCodec, and a fresh Registry/Dependencies
// pair into a Router ready for Start.
func NewRouter(tree *RouteTree, query QueryCodec, opts RouterOptions) *Router {
	if query == nil {
		query = defaultquery.New()
	}
	return &Router{
		tree:      tree,
		matcher:   NewMatcher(tree, query),
		query:     query,
		registry:  NewRegistry(),
		deps:      NewDependencies(nil),
		scheduler: newTaskScheduler(),
		events:    newEventBus(),
		opts:      opts,
		state:     smIdle,
	}
}

// --- registry + dependency passthroughs ---

func (r *Router) Registry() *Registry         { return r.registry }
func (r *Router) Dependencies() *Dependencies { return r.deps }

func (r *Router) AddPlugin(p *Plugin) Disposer                   { return r.registry.AddPlugin(p) }
func (r *Router) AddMiddleware(f MiddlewareFactory) Disposer     { return r.registry.AddMiddleware(f) }
func (r *Router) AddCanActivate(route string, f GuardFactory) Disposer {
	return r.registry.AddCanActivate(route, f)
}
func (r *Router) AddCanDeactivate(route string, f GuardFactory) Disposer {
	return r.registry.AddCanDeactivate(route, f)
}

func (r *Router) AddEventListener(name EventName, cb EventListener) Disposer {
	return r.events.on(name, cb)
}

// Subscribe delivers only $$success snapshots.
func (r *Router) Subscribe(cb func(to *State)) Disposer {
	return r.events.on(EventTransitionSuccess, func(to, from *State, extra any) {
		cb(to)
	})
}

// --- path/name helpers ---

func (r *Router) SetRootPath(p string) {
	r.mu.Lock()
	r.rootPath = p
	r.mu.Unlock()
	r.matcher.SetRootPath(p)
}

func (r *Router) GetRootPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rootPath
}

func (r *Router) HasRoute(name string) bool { return r.matcher.HasRoute(name) }

func (r *Router) GetOptions() RouterOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opts
}

func (r *Router) SetOption(apply func(*RouterOptions)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	apply(&r.opts)
}

func (r *Router) BuildPath(name string, params map[string]any, opts PathOptions) (string, error) {
	return BuildPath(r.tree, r.query, name, params, opts)
}

func (r *Router) MatchPath(url string) (*MatchResult, error) {
	return r.matcher.Match(url, MatchOptions{})
}

func (r *Router) GetState() *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Router) AreStatesEqual(a, b *State, ignoreQueryParams bool) bool {
	return AreStatesEqual(a, b, ignoreQueryParams, r.urlParamNames(a))
}

func (r *Router) urlParamNames(s *State) map[string]bool {
	if s == nil {
		return nil
	}
	chain, ok := r.tree.Chain(s.Name)
	if !ok {
		return nil
	}
	names := make(map[string]bool)
	for _, node := range chain {
		for _, n := range node.Compiled.urlParamsInclAncestors() {
			names[n] = true
		}
	}
	return names
}

func (r *Router) MakeState(name string, params map[string]any, path string, meta StateMeta) *State {
	return MakeState(&r.stateCounter, name, params, path, meta, 0)
}

// BuildState resolves name+params to a State via buildPath, without touching
// the SM's current state.
func (r *Router) BuildState(name string, params map[string]any) (*State, error) {
	path, err := r.BuildPath(name, params, PathOptions{})
	if err != nil {
		return nil, err
	}
	return r.MakeState(name, params, path, StateMeta{}), nil
}

// ForwardState resolves name's forwardTo chain (if any) and returns the
// resulting terminal State, marking meta.Redirected when a hop occurred.
func (r *Router) ForwardState(name string, params map[string]any) (*State, error) {
	return r.resolveTarget(name, params)
}

// --- Clone ---

// Clone produces a fresh Idle Router sharing this one's RouteTree and
// QueryCodec, with copied registry slots and a copied (optionally
// overridden) dependency snapshot. current/pending are never copied.
func (r *Router) Clone(depsOverride map[string]any) *Router {
	r.mu.Lock()
	opts := r.opts
	rootPath := r.rootPath
	r.mu.Unlock()

	seed := r.deps.Snapshot()
	for k, v := range depsOverride {
		seed[k] = v
	}
	clone := &Router{
		tree:      r.tree,
		matcher:   NewMatcher(r.tree, r.query),
		query:     r.query,
		registry:  r.registry.clone(),
		deps:      NewDependencies(seed),
		scheduler: newTaskScheduler(),
		events:    newEventBus(),
		opts:      opts,
		state:     smIdle,
		rootPath:  rootPath,
	}
	clone.matcher.SetRootPath(rootPath)
	return clone
}

// --- lifecycle: start / stop ---

// Start resolves the initial State and transitions Idle -> Starting ->
// Started. initial may be nil (use opts.DefaultRoute), a string
// path (matched via matchPath), or a *State (used as-is).
func (r *Router) Start(initial any) error {
	r.mu.Lock()
	if r.state != smIdle {
		r.mu.Unlock()
		return newErr(ErrCodeInvalidRoute, "", "start: router is not Idle")
	}
	r.state = smStarting
	r.mu.Unlock()

	target, err := r.resolveInitial(initial)
	if err != nil {
		if r.opts.AllowNotFound {
			target = r.MakeState("@@unknown", nil, "", StateMeta{})
		} else {
			r.emitTransitionError(nil, nil, err)
			return err
		}
	}

	r.mu.Lock()
	r.current = target
	r.state = smStarted
	r.mu.Unlock()

	r.events.emit(EventStart, target, nil, r.opts)
	for _, p := range r.registry.Plugins() {
		if p.OnStart != nil {
			r.safePluginCall(target, nil, func() { p.OnStart(NavigationOptions{}) })
		}
	}
	r.emitTransitionSuccess(target, nil, NavigationOptions{})
	return nil
}

func (r *Router) resolveInitial(initial any) (*State, error) {
	switch v := initial.(type) {
	case nil:
		if r.opts.DefaultRoute == "" {
			return nil, newErr(ErrCodeRouteNotFound, "", "start: no initial state, path, or defaultRoute configured")
		}
		return r.resolveTarget(r.opts.DefaultRoute, nil)
	case *State:
		return v, nil
	case string:
		res, err := r.matcher.Match(v, MatchOptions{})
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, newErr(ErrCodeRouteNotFound, v, "start: no route matches path %q", v)
		}
		return r.MakeState(res.FullName, res.Params, v, StateMeta{Source: "programmatic"}), nil
	default:
		return nil, newErr(ErrCodeInvalidRoute, "", "start: unsupported initial value type")
	}
}

// Stop transitions to Stopped, cancelling any in-flight transition. The
// cancelled transition's own goroutine emits the single $$cancel event at
// its next checkpoint. Every registered plugin's Teardown hook runs once.
func (r *Router) Stop() {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.state = smStopped
	r.mu.Unlock()

	if pending != nil {
		pending.cancel()
	}
	r.events.emit(EventStop, nil, nil, nil)
	for _, p := range r.registry.Plugins() {
		if p.OnStop != nil {
			r.safePluginCall(nil, nil, p.OnStop)
		}
	}
	for _, p := range r.registry.Plugins() {
		if p.Teardown != nil {
			r.safePluginCall(nil, nil, p.Teardown)
		}
	}
}

// safePluginCall invokes one plugin hook, converting a panic into a
// PluginThrew error on the $$error channel. The error goes to event
// listeners only, never back into the plugin fan-out, so a hook that
// panics while handling an error cannot recurse.
func (r *Router) safePluginCall(to, from *State, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			route := ""
			if to != nil {
				route = to.Name
			}
			err := newErr(ErrCodePluginThrew, route, "plugin hook panicked: %v", rec)
			r.events.emit(EventTransitionError, to, from, err)
		}
	}()
	fn()
}

// --- event + plugin-hook fan-out ---

func (r *Router) emitTransitionStart(to, from *State, opts NavigationOptions) {
	r.events.emit(EventTransitionStart, to, from, opts)
	for _, p := range r.registry.Plugins() {
		if p.OnTransitionStart != nil {
			r.safePluginCall(to, from, func() { p.OnTransitionStart(to, from) })
		}
	}
}

func (r *Router) emitTransitionSuccess(to, from *State, opts NavigationOptions) {
	r.events.emit(EventTransitionSuccess, to, from, opts)
	for _, p := range r.registry.Plugins() {
		if p.OnTransitionSuccess != nil {
			r.safePluginCall(to, from, func() { p.OnTransitionSuccess(to, from, opts) })
		}
	}
}

func (r *Router) emitTransitionError(to, from *State, err error) {
	r.events.emit(EventTransitionError, to, from, err)
	for _, p := range r.registry.Plugins() {
		if p.OnTransitionError != nil {
			r.safePluginCall(to, from, func() { p.OnTransitionError(to, from, err) })
		}
	}
}

func (r *Router) emitTransitionCancel(to, from *State) {
	r.events.emit(EventTransitionCancel, to, from, nil)
	for _, p := range r.registry.Plugins() {
		if p.OnTransitionCancel != nil {
			r.safePluginCall(to, from, func() { p.OnTransitionCancel(to, from) })
		}
	}
}

// --- navigate pipeline ---

func (r *Router) resolveTarget(name string, params map[string]any) (*State, error) {
	visited := make(map[string]bool)
	cur := name
	redirected := false
	for {
		node, ok := r.tree.ByName(cur)
		if !ok {
			return nil, newErr(ErrCodeRouteNotFound, cur, "route %q is not registered", cur)
		}
		if node.ForwardTo == "" {
			break
		}
		if visited[cur] || len(visited) > forwardChainCap {
			return nil, newErr(ErrCodeForwardChainTooLong, name, "forward chain exceeded from %q", name)
		}
		visited[cur] = true
		redirected = true
		cur = node.ForwardTo
	}

	merged := params
	if node, ok := r.tree.ByName(cur); ok && len(node.DefaultParams) > 0 {
		merged = make(map[string]any, len(node.DefaultParams)+len(params))
		for k, v := range node.DefaultParams {
			merged[k] = v
		}
		for k, v := range params {
			merged[k] = v
		}
	}

	path, err := r.BuildPath(cur, merged, PathOptions{})
	if err != nil {
		return nil, err
	}
	return r.MakeState(cur, merged, path, StateMeta{Redirected: redirected}), nil
}

// NavigateToDefault navigates to opts.DefaultRoute.
func (r *Router) NavigateToDefault(opts NavigationOptions) *NavigationHandle {
	return r.Navigate(r.opts.DefaultRoute, nil, opts)
}

// Navigate resolves name+params to a target State and drives it through the
// full transition pipeline: canDeactivate guards (leaf to root), canActivate
// guards (root to leaf), middlewares in registration order, then commit.
//
// Navigating to a State equal to the current one (same name, same params) is
// a no-op that returns the current State without emitting events, unless
// opts.Reload or opts.Force is set. If the named route carries a forwardTo
// chain it is followed before the pipeline starts, and the resulting State
// is marked redirected. A Navigate issued while another transition is in
// flight cancels that transition, unless both target the same State, in
// which case the existing handle is returned to both callers.
//
// The pipeline body runs on its own goroutine; Navigate itself returns as
// soon as the transition is dispatched.
//
// Parameters:
//   - name: The route's dot-joined fullName (e.g., "users.profile")
//   - params: URL, matrix, splat, and query parameter values; may be nil
//   - opts: Per-call behavior (Reload, Force, Replace, ForceDeactivate, Source)
//
// Returns:
//   - *NavigationHandle: Cancel the transition, or Wait for its outcome.
//     Wait returns the committed State, or an *Error whose Code reports
//     why the transition did not commit (RouteNotFound, NotAllowed,
//     TransitionCancelled, GuardThrew, MiddlewareThrew, ...)
//
// Example:
//
//	h := r.Navigate("users.profile", map[string]any{"id": "42"}, NavigationOptions{})
//	state, err := h.Wait()
//	if err != nil {
//		// transition denied, cancelled, or failed; current state unchanged
//	}
//
// Thread Safety:
// Navigate may be called from any goroutine; dispatch decisions are
// serialized on the router's internal scheduler.
func (r *Router) Navigate(name string, params map[string]any, opts NavigationOptions) *NavigationHandle {
	target, err := r.resolveTarget(name, params)
	if err != nil {
		p := &pendingTransition{done: make(chan struct{}), err: err}
		close(p.done)
		r.emitTransitionError(nil, r.GetState(), err)
		return &NavigationHandle{p: p}
	}
	return r.navigateToState(target, opts)
}

func (r *Router) navigateToState(target *State, opts NavigationOptions) *NavigationHandle {
	from := r.GetState()

	// Step 2: same-state short-circuit.
	if !opts.Reload && !opts.Force && r.AreStatesEqual(target, from, false) {
		p := &pendingTransition{done: make(chan struct{}), result: from}
		close(p.done)
		return &NavigationHandle{p: p}
	}

	// The dispatch decision itself (is a transition already in flight? does it
	// dedupe or get preempted?) is run as one microtask on the router's
	// scheduler, so concurrent Start/Stop/Navigate callers are serialized,
	// while the long-running transition body below runs on its own goroutine
	// so a later Navigate can still preempt it mid-flight. The handle travels back
	// over a channel because the task may drain on another caller's goroutine.
	handleCh := make(chan *NavigationHandle, 1)
	r.scheduler.enqueue(func() {
		r.mu.Lock()
		if r.state != smStarted && r.state != smTransitioning {
			r.mu.Unlock()
			err := newErr(ErrCodeInvalidRoute, target.Name, "navigate: router is not Started")
			p := &pendingTransition{done: make(chan struct{}), err: err}
			close(p.done)
			handleCh <- &NavigationHandle{p: p}
			return
		}

		// Step 3: single-flight dedupe, or preempt the in-flight transition.
		// The preempted goroutine emits its own $$cancel at its next
		// checkpoint, so no emit happens here; one cancellation, one event.
		if existing := r.pending; existing != nil {
			if AreStatesEqual(existing.target, target, false, nil) {
				r.mu.Unlock()
				handleCh <- &NavigationHandle{p: existing}
				return
			}
			existing.cancel()
		}

		p := &pendingTransition{token: newCancelToken(), target: target, from: from, done: make(chan struct{})}
		r.pending = p
		r.state = smTransitioning
		r.mu.Unlock()

		go r.runTransition(p, target, from, opts)
		handleCh <- &NavigationHandle{p: p}
	})

	return <-handleCh
}

// runTransition drives steps 4-9 of the pipeline for one pendingTransition.
func (r *Router) runTransition(p *pendingTransition, target, from *State, opts NavigationOptions) {
	settle := func(result *State, err error) {
		r.mu.Lock()
		if r.pending == p {
			r.pending = nil
			if r.state == smTransitioning {
				r.state = smStarted
			}
		}
		r.mu.Unlock()
		p.result, p.err = result, err
		close(p.done)
	}

	if p.isCancelled() {
		r.emitTransitionCancel(target, from)
		settle(nil, newErr(ErrCodeTransitionCancelled, target.Name, "navigate: cancelled before start"))
		return
	}

	r.emitTransitionStart(target, from, opts)

	var fromChain []*RouteNode
	if from != nil {
		fromChain, _ = r.tree.Chain(from.Name)
	}
	toChain, ok := r.tree.Chain(target.Name)
	if !ok {
		err := newErr(ErrCodeRouteNotFound, target.Name, "route %q is not registered", target.Name)
		r.emitTransitionError(target, from, err)
		settle(nil, err)
		return
	}

	common := commonPrefixLen(fromChain, toChain)

	// Step 5: canDeactivate, leaf-to-root, over fromChain[common:].
	if !opts.Force && !opts.ForceDeactivate {
		for i := len(fromChain) - 1; i >= common; i-- {
			if p.isCancelled() {
				r.emitTransitionCancel(target, from)
				settle(nil, newErr(ErrCodeTransitionCancelled, target.Name, "navigate: cancelled during canDeactivate"))
				return
			}
			node := fromChain[i]
			redirect, err := r.runGuards(r.registry.CanDeactivateFor(node.FullName), target, from)
			if err != nil {
				r.emitTransitionError(target, from, err)
				settle(nil, err)
				return
			}
			if redirect != nil {
				redirect.Meta.Redirected = true
				r.restartPipeline(p, redirect, from, opts)
				return
			}
		}
	}

	// Step 6: canActivate, root-to-leaf, over toChain[common:].
	for i := common; i < len(toChain); i++ {
		if p.isCancelled() {
			r.emitTransitionCancel(target, from)
			settle(nil, newErr(ErrCodeTransitionCancelled, target.Name, "navigate: cancelled during canActivate"))
			return
		}
		node := toChain[i]
		redirect, err := r.runGuards(r.registry.CanActivateFor(node.FullName), target, from)
		if err != nil {
			r.emitTransitionError(target, from, err)
			settle(nil, err)
			return
		}
		if redirect != nil {
			redirect.Meta.Redirected = true
			r.restartPipeline(p, redirect, from, opts)
			return
		}
	}

	// Step 7: middlewares, registration order.
	effective := target
	for _, factory := range r.registry.Middlewares() {
		if p.isCancelled() {
			r.emitTransitionCancel(target, from)
			settle(nil, newErr(ErrCodeTransitionCancelled, target.Name, "navigate: cancelled during middleware"))
			return
		}
		mw := factory(r, r.deps.Accessor())
		redirect, err := r.runMiddleware(mw, effective, from)
		if err != nil {
			r.emitTransitionError(target, from, err)
			settle(nil, err)
			return
		}
		if redirect != nil && redirect != effective {
			redirect.Meta.Redirected = true
			r.restartPipeline(p, redirect, from, opts)
			return
		}
	}

	if p.isCancelled() {
		r.emitTransitionCancel(target, from)
		settle(nil, newErr(ErrCodeTransitionCancelled, target.Name, "navigate: cancelled before commit"))
		return
	}

	// Step 8: commit.
	r.mu.Lock()
	r.current = effective
	r.mu.Unlock()
	r.emitTransitionSuccess(effective, from, opts)
	settle(effective, nil)
}

func (r *Router) restartPipeline(p *pendingTransition, redirect, from *State, opts NavigationOptions) {
	r.mu.Lock()
	if r.pending == p {
		r.pending = nil
	}
	r.mu.Unlock()
	h := r.navigateToState(redirect, opts)
	res, err := h.Wait()
	p.result, p.err = res, err
	close(p.done)
}

// runGuards runs a list of GuardFactory-produced Guards against (to, from),
// returning a non-nil redirect State on the first guard that wants one and
// an ErrCodeNotAllowed/ErrCodeGuardThrew error on denial/panic.
func (r *Router) runGuards(factories []GuardFactory, to, from *State) (redirect *State, err error) {
	for _, factory := range factories {
		guard := factory(r, r.deps.Accessor())
		allowed, red, gerr := r.invokeGuard(guard, to, from)
		if gerr != nil {
			return nil, gerr
		}
		if red != nil {
			return red, nil
		}
		if !allowed {
			return nil, newErr(ErrCodeNotAllowed, to.Name, "guard denied transition to %q", to.Name)
		}
	}
	return nil, nil
}

func (r *Router) invokeGuard(guard Guard, to, from *State) (allowed bool, redirect *State, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = wrapErr(ErrCodeGuardThrew, to.Name, nil, "guard panicked: %v", rec)
		}
	}()
	return guard(to, from)
}

func (r *Router) runMiddleware(mw Middleware, to, from *State) (redirect *State, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = wrapErr(ErrCodeMiddlewareThrew, to.Name, nil, "middleware panicked: %v", rec)
		}
	}()
	return mw(to, from)
}

func commonPrefixLen(a, b []*RouteNode) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

