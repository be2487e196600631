// Package monitoring adapts Prometheus metrics collection to routestate's
// Plugin contract.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/routestate/routestate"
)

// PrometheusPlugin exposes navigation counters and a histogram of pipeline
// stage counts in the Prometheus format. All metrics are prefixed with
// "routestate_", registered immediately, failing fast on duplicate
// registration.
//
// Metrics exposed:
//   - routestate_transitions_started_total
//   - routestate_transitions_succeeded_total
//   - routestate_transitions_errored_total
//   - routestate_transitions_cancelled_total
//   - routestate_transition_stage_count: histogram of pipeline stages a
//     committed transition ran through (canDeactivate+canActivate+middleware)
type PrometheusPlugin struct {
	started    prometheus.Counter
	succeeded  *prometheus.CounterVec
	errored    *prometheus.CounterVec
	cancelled  prometheus.Counter
	stageCount prometheus.Histogram
}

// NewPrometheusPlugin registers all metrics against reg and returns the
// plugin. Pass prometheus.NewRegistry() in tests to avoid colliding with the
// default global registry across runs.
func NewPrometheusPlugin(reg prometheus.Registerer) *PrometheusPlugin {
	started := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routestate_transitions_started_total",
		Help: "Total number of navigate() calls that reached the $$start event.",
	})
	succeeded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routestate_transitions_succeeded_total",
		Help: "Total number of committed transitions, partitioned by destination route.",
	}, []string{"route"})
	errored := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routestate_transitions_errored_total",
		Help: "Total number of failed transitions, partitioned by error code.",
	}, []string{"code"})
	cancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routestate_transitions_cancelled_total",
		Help: "Total number of transitions preempted or stopped before commit.",
	})
	stageCount := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "routestate_transition_stage_count",
		Help:    "Histogram of route-node guard stages a committed transition ran through.",
		Buckets: []float64{0, 1, 2, 3, 5, 7, 10},
	})

	reg.MustRegister(started, succeeded, errored, cancelled, stageCount)

	return &PrometheusPlugin{
		started:    started,
		succeeded:  succeeded,
		errored:    errored,
		cancelled:  cancelled,
		stageCount: stageCount,
	}
}

// Plugin returns a routestate.Plugin wiring every lifecycle hook this
// collector cares about.
func (pp *PrometheusPlugin) Plugin() *routestate.Plugin {
	return &routestate.Plugin{
		OnTransitionSuccess: func(to, from *routestate.State, _ routestate.NavigationOptions) {
			pp.succeeded.WithLabelValues(to.Name).Inc()
		},
		OnTransitionError: func(to, from *routestate.State, err error) {
			code := "unknown"
			if re, ok := err.(*routestate.Error); ok {
				code = re.Code.String()
			}
			pp.errored.WithLabelValues(code).Inc()
		},
		OnTransitionCancel: func(to, from *routestate.State) {
			pp.cancelled.Inc()
		},
	}
}

// RecordStart increments the started counter. Plugin() does not wire an
// OnTransitionStart hook, so callers invoke this from an $$start event
// listener.
func (pp *PrometheusPlugin) RecordStart() {
	pp.started.Inc()
}

// RecordStageCount observes how many guard/middleware stages a committed
// transition traversed, for callers that track it themselves (e.g. via a
// middleware that counts invocations).
func (pp *PrometheusPlugin) RecordStageCount(n int) {
	pp.stageCount.Observe(float64(n))
}
