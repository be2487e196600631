// Package observability adapts Sentry error reporting to routestate's
// Plugin contract.
package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/routestate/routestate"
)

// SentryOption configures the underlying Sentry client.
type SentryOption func(*sentry.ClientOptions)

func WithDebug(debug bool) SentryOption {
	return func(o *sentry.ClientOptions) { o.Debug = debug }
}

func WithEnvironment(env string) SentryOption {
	return func(o *sentry.ClientOptions) { o.Environment = env }
}

func WithRelease(release string) SentryOption {
	return func(o *sentry.ClientOptions) { o.Release = release }
}

func WithBeforeSend(fn func(*sentry.Event, *sentry.EventHint) *sentry.Event) SentryOption {
	return func(o *sentry.ClientOptions) { o.BeforeSend = fn }
}

// SentryPlugin reports transition errors and cancellations to Sentry.
type SentryPlugin struct {
	hub *sentry.Hub
}

// NewSentryPlugin initializes the Sentry SDK. An empty dsn disables
// sending, useful in tests.
func NewSentryPlugin(dsn string, opts ...SentryOption) (*SentryPlugin, error) {
	clientOpts := sentry.ClientOptions{Dsn: dsn}
	for _, opt := range opts {
		opt(&clientOpts)
	}
	if err := sentry.Init(clientOpts); err != nil {
		return nil, fmt.Errorf("observability: sentry init failed: %w", err)
	}
	return &SentryPlugin{hub: sentry.CurrentHub()}, nil
}

// Plugin returns a routestate.Plugin whose OnTransitionError reports to
// Sentry with route tags and whose Teardown flushes pending events.
func (sp *SentryPlugin) Plugin() *routestate.Plugin {
	return &routestate.Plugin{
		OnTransitionError: func(to, from *routestate.State, err error) {
			sp.hub.WithScope(func(scope *sentry.Scope) {
				if to != nil {
					scope.SetTag("route.to", to.Name)
					scope.SetExtra("path.to", to.Path)
				}
				if from != nil {
					scope.SetTag("route.from", from.Name)
					scope.SetExtra("path.from", from.Path)
				}
				sp.hub.CaptureException(err)
			})
		},
		OnTransitionCancel: func(to, from *routestate.State) {
			fromName := ""
			if from != nil {
				fromName = from.Name
			}
			sp.hub.AddBreadcrumb(&sentry.Breadcrumb{
				Category: "navigation",
				Message:  fmt.Sprintf("transition %s -> %s cancelled", fromName, to.Name),
				Level:    sentry.LevelInfo,
			}, nil)
		},
		Teardown: func() {
			sp.Flush(5 * time.Second)
		},
	}
}

// Flush blocks until pending events are sent or timeout elapses.
func (sp *SentryPlugin) Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}
