// Package stream is a thin observable adapter over the router's committed
// navigation states: a lazy, hot, restartable sequence of State snapshots
// with a small fixed operator set. It is deliberately not a general reactive
// operator library; each operator exists because route observation needs it.
package stream

import (
	"sync"
	"time"

	"github.com/routestate/routestate"
)

// Observable is a push sequence of values. It is lazy (nothing attaches to
// the source until Subscribe), hot (values emitted while nobody listens are
// dropped, never replayed), and restartable (a new Subscribe after earlier
// subscriptions ended attaches the source again).
type Observable[T any] struct {
	connect func(sink func(T)) (cancel func())
}

// New builds an Observable from a connect function. connect attaches sink to
// the underlying source and returns a detach func; it is called once per
// Subscribe.
func New[T any](connect func(sink func(T)) func()) *Observable[T] {
	return &Observable[T]{connect: connect}
}

// FromRouter observes a router's committed transitions: one value per
// $$success event, delivered synchronously from the router's event fan-out.
func FromRouter(r *routestate.Router) *Observable[*routestate.State] {
	return New(func(sink func(*routestate.State)) func() {
		dispose := r.AddEventListener(routestate.EventTransitionSuccess,
			func(to, from *routestate.State, extra any) { sink(to) })
		return func() { dispose() }
	})
}

// Subscribe attaches next to the sequence and returns an unsubscribe func.
// Unsubscribing is idempotent.
func (o *Observable[T]) Subscribe(next func(T)) (unsubscribe func()) {
	cancel := o.connect(next)
	var once sync.Once
	return func() { once.Do(cancel) }
}

// Filter emits only values pred accepts.
func (o *Observable[T]) Filter(pred func(T) bool) *Observable[T] {
	return New(func(sink func(T)) func() {
		return o.connect(func(v T) {
			if pred(v) {
				sink(v)
			}
		})
	})
}

// Map projects each value through project. A package function rather than a
// method because Go methods cannot introduce the second type parameter.
func Map[T, U any](src *Observable[T], project func(T) U) *Observable[U] {
	return New(func(sink func(U)) func() {
		return src.connect(func(v T) {
			sink(project(v))
		})
	})
}

// DistinctUntilChanged suppresses a value when project maps it to the same
// key (compared with ==, so reference equality for pointers) as the previous
// emission. The first value always passes.
func (o *Observable[T]) DistinctUntilChanged(project func(T) any) *Observable[T] {
	return New(func(sink func(T)) func() {
		var mu sync.Mutex
		var prev any
		seen := false
		return o.connect(func(v T) {
			key := project(v)
			mu.Lock()
			if seen && prev == key {
				mu.Unlock()
				return
			}
			prev, seen = key, true
			mu.Unlock()
			sink(v)
		})
	})
}

// DebounceTime emits the latest value only after d has elapsed without a
// newer one. Unsubscribing stops any pending timer, so no emission escapes a
// closed subscription.
func (o *Observable[T]) DebounceTime(d time.Duration) *Observable[T] {
	return New(func(sink func(T)) func() {
		var mu sync.Mutex
		var timer *time.Timer
		closed := false

		cancel := o.connect(func(v T) {
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(d, func() {
				mu.Lock()
				if closed {
					mu.Unlock()
					return
				}
				mu.Unlock()
				sink(v)
			})
		})

		return func() {
			mu.Lock()
			closed = true
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			cancel()
		}
	})
}

// TakeUntil mirrors src until notifier emits its first value, then ends the
// sequence. Unsubscribing detaches from both.
func TakeUntil[T, U any](src *Observable[T], notifier *Observable[U]) *Observable[T] {
	return New(func(sink func(T)) func() {
		var mu sync.Mutex
		stopped := false

		cancelSrc := src.connect(func(v T) {
			mu.Lock()
			done := stopped
			mu.Unlock()
			if !done {
				sink(v)
			}
		})
		cancelNotifier := notifier.connect(func(U) {
			mu.Lock()
			stopped = true
			mu.Unlock()
		})

		return func() {
			mu.Lock()
			stopped = true
			mu.Unlock()
			cancelSrc()
			cancelNotifier()
		}
	})
}
