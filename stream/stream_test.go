package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routestate/routestate"
	"github.com/routestate/routestate/query"
)

// manualSource is a hand-driven hot source for operator tests.
type manualSource[T any] struct {
	mu    sync.Mutex
	sinks []func(T)
}

func (s *manualSource[T]) observable() *Observable[T] {
	return New(func(sink func(T)) func() {
		s.mu.Lock()
		s.sinks = append(s.sinks, sink)
		idx := len(s.sinks) - 1
		s.mu.Unlock()
		return func() {
			s.mu.Lock()
			s.sinks[idx] = nil
			s.mu.Unlock()
		}
	})
}

func (s *manualSource[T]) push(v T) {
	s.mu.Lock()
	sinks := append([]func(T){}, s.sinks...)
	s.mu.Unlock()
	for _, sink := range sinks {
		if sink != nil {
			sink(v)
		}
	}
}

func TestSubscribeReceivesPushedValues(t *testing.T) {
	src := &manualSource[int]{}
	var got []int
	unsub := src.observable().Subscribe(func(v int) { got = append(got, v) })
	defer unsub()

	src.push(1)
	src.push(2)
	assert.Equal(t, []int{1, 2}, got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	src := &manualSource[int]{}
	var got []int
	unsub := src.observable().Subscribe(func(v int) { got = append(got, v) })

	src.push(1)
	unsub()
	unsub() // idempotent
	src.push(2)
	assert.Equal(t, []int{1}, got)
}

func TestLazyAttachAndRestart(t *testing.T) {
	src := &manualSource[int]{}
	obs := src.observable()
	assert.Empty(t, src.sinks, "nothing attaches before Subscribe")

	unsub := obs.Subscribe(func(int) {})
	unsub()

	var got []int
	unsub2 := obs.Subscribe(func(v int) { got = append(got, v) })
	defer unsub2()
	src.push(7)
	assert.Equal(t, []int{7}, got, "a fresh Subscribe re-attaches the source")
}

func TestFilter(t *testing.T) {
	src := &manualSource[int]{}
	var got []int
	unsub := src.observable().Filter(func(v int) bool { return v%2 == 0 }).
		Subscribe(func(v int) { got = append(got, v) })
	defer unsub()

	for i := 1; i <= 4; i++ {
		src.push(i)
	}
	assert.Equal(t, []int{2, 4}, got)
}

func TestMap(t *testing.T) {
	src := &manualSource[int]{}
	var got []string
	unsub := Map(src.observable(), func(v int) string {
		if v > 0 {
			return "pos"
		}
		return "neg"
	}).Subscribe(func(v string) { got = append(got, v) })
	defer unsub()

	src.push(3)
	src.push(-1)
	assert.Equal(t, []string{"pos", "neg"}, got)
}

func TestDistinctUntilChanged(t *testing.T) {
	src := &manualSource[string]{}
	var got []string
	unsub := src.observable().DistinctUntilChanged(func(v string) any { return v }).
		Subscribe(func(v string) { got = append(got, v) })
	defer unsub()

	src.push("a")
	src.push("a")
	src.push("b")
	src.push("a")
	assert.Equal(t, []string{"a", "b", "a"}, got)
}

func TestDebounceTimeEmitsOnlyLatest(t *testing.T) {
	src := &manualSource[int]{}
	var mu sync.Mutex
	var got []int
	unsub := src.observable().DebounceTime(30 * time.Millisecond).
		Subscribe(func(v int) {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		})
	defer unsub()

	src.push(1)
	src.push(2)
	src.push(3)
	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{3}, got)
}

func TestDebounceTimeUnsubscribeDropsPending(t *testing.T) {
	src := &manualSource[int]{}
	var mu sync.Mutex
	var got []int
	unsub := src.observable().DebounceTime(30 * time.Millisecond).
		Subscribe(func(v int) {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		})

	src.push(1)
	unsub()
	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, got)
}

func TestTakeUntil(t *testing.T) {
	src := &manualSource[int]{}
	stop := &manualSource[struct{}]{}
	var got []int
	unsub := TakeUntil(src.observable(), stop.observable()).
		Subscribe(func(v int) { got = append(got, v) })
	defer unsub()

	src.push(1)
	stop.push(struct{}{})
	src.push(2)
	assert.Equal(t, []int{1}, got)
}

func TestFromRouterEmitsCommittedStates(t *testing.T) {
	tree, err := routestate.NewRouteTree([]routestate.RouteDefinition{
		{Name: "home", Path: "/"},
		{Name: "about", Path: "/about"},
	}, routestate.TreeOptions{})
	require.NoError(t, err)

	r := routestate.NewRouter(tree, query.New(), routestate.RouterOptions{DefaultRoute: "home"})

	var got []string
	unsub := FromRouter(r).Subscribe(func(s *routestate.State) { got = append(got, s.Name) })
	defer unsub()

	require.NoError(t, r.Start(nil))
	_, err = r.Navigate("about", nil, routestate.NavigationOptions{}).Wait()
	require.NoError(t, err)

	assert.Equal(t, []string{"home", "about"}, got)
}
