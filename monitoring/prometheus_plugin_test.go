package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routestate/routestate"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	require.NoError(t, (<-ch).Write(m))
	return m.GetCounter().GetValue()
}

func TestPrometheusPluginRegistersMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	pp := NewPrometheusPlugin(reg)
	require.NotNil(t, pp)

	// Label-partitioned vectors only appear in Gather once a child exists.
	pp.succeeded.WithLabelValues("home")
	pp.errored.WithLabelValues("NotAllowed")

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["routestate_transitions_started_total"])
	assert.True(t, names["routestate_transitions_succeeded_total"])
	assert.True(t, names["routestate_transitions_errored_total"])
	assert.True(t, names["routestate_transitions_cancelled_total"])
	assert.True(t, names["routestate_transition_stage_count"])
}

func TestPrometheusPluginOnTransitionSuccessIncrementsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	pp := NewPrometheusPlugin(reg)
	p := pp.Plugin()

	to := &routestate.State{Name: "about"}
	p.OnTransitionSuccess(to, nil, routestate.NavigationOptions{})

	assert.Equal(t, float64(1), counterValue(t, pp.succeeded.WithLabelValues("about")))
}

func TestPrometheusPluginOnTransitionErrorUsesErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	pp := NewPrometheusPlugin(reg)
	p := pp.Plugin()

	to := &routestate.State{Name: "about"}
	rerr := &routestate.Error{Code: routestate.ErrCodeNotAllowed, Message: "denied"}
	p.OnTransitionError(to, nil, rerr)

	assert.Equal(t, float64(1), counterValue(t, pp.errored.WithLabelValues("NotAllowed")))
}

func TestPrometheusPluginOnTransitionErrorUnknownCodeForPlainError(t *testing.T) {
	reg := prometheus.NewRegistry()
	pp := NewPrometheusPlugin(reg)
	p := pp.Plugin()

	to := &routestate.State{Name: "about"}
	p.OnTransitionError(to, nil, assert.AnError)

	assert.Equal(t, float64(1), counterValue(t, pp.errored.WithLabelValues("unknown")))
}

func TestPrometheusPluginOnTransitionCancelIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	pp := NewPrometheusPlugin(reg)
	p := pp.Plugin()

	p.OnTransitionCancel(&routestate.State{Name: "about"}, nil)
	p.OnTransitionCancel(&routestate.State{Name: "about"}, nil)

	assert.Equal(t, float64(2), counterValue(t, pp.cancelled))
}

func TestPrometheusPluginRecordHelpers(t *testing.T) {
	reg := prometheus.NewRegistry()
	pp := NewPrometheusPlugin(reg)
	pp.RecordStart()
	pp.RecordStageCount(3)
	assert.Equal(t, float64(1), counterValue(t, pp.started))
}
