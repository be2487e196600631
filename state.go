package routestate

import (
	"reflect"
	"sync/atomic"
)

var stateIDCounter uint64

// nextStateID returns the next id from counter; each Router owns its own
// counter, so ids increase strictly within one router instance.
func nextStateID(counter *uint64) uint64 {
	return atomic.AddUint64(counter, 1)
}

// StateMeta carries a State's bookkeeping: the unencoded params, the
// navigation options that produced it, and its origin.
type StateMeta struct {
	Params      map[string]any
	Options     NavigationOptions
	Redirected  bool
	Source      string // "popstate" | "programmatic" | ""
	SourceRoute string
}

// State is an immutable navigation target/result.
type State struct {
	Name   string
	Params map[string]any
	Path   string
	ID     uint64
	Meta   StateMeta
}

// NavigationOptions are the recognized navigate() option keys.
type NavigationOptions struct {
	Reload          bool
	Force           bool
	Replace         bool
	ForceDeactivate bool
	Source          string
}

// MakeState constructs a State, copying params defensively and assigning the
// next id from counter.
func MakeState(counter *uint64, name string, params map[string]any, path string, meta StateMeta, forceID uint64) *State {
	id := forceID
	if id == 0 {
		id = nextStateID(counter)
	}
	cp := make(map[string]any, len(params))
	for k, v := range params {
		cp[k] = v
	}
	if meta.Params == nil {
		meta.Params = cp
	}
	return &State{Name: name, Params: cp, Path: path, ID: id, Meta: meta}
}

// AreStatesEqual reports name and (optionally URL-only) param equality.
func AreStatesEqual(a, b *State, ignoreQueryParams bool, urlParamNames map[string]bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Name != b.Name {
		return false
	}
	if !ignoreQueryParams {
		return reflect.DeepEqual(a.Params, b.Params)
	}
	for k := range urlParamNames {
		if !reflect.DeepEqual(a.Params[k], b.Params[k]) {
			return false
		}
	}
	return true
}

// HistoryEntry records one committed transition, for a host-side history
// adapter to observe.
type HistoryEntry struct {
	State *State
	Extra any
}

// HistoryObserver is the contract a host-supplied browser/server history
// collaborator implements. routestate never persists entries itself.
type HistoryObserver interface {
	OnPush(entry HistoryEntry)
	OnReplace(entry HistoryEntry)
}
