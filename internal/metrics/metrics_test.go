package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveBackendRequest("epochs_current", "200", 10*time.Millisecond)
	m.ObserveBackendRequest("epochs_current", "200", 20*time.Millisecond)
	m.PollCycle("ok")
	m.SetRoundState(3, 42)
	m.Submission("success")
	m.StakingTx("stake", "sent")
	m.SetWSClients(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.backendRequests.WithLabelValues("epochs_current", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pollCycles.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.currentEpoch))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.relevantRound))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stakeTxs.WithLabelValues("stake", "sent")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.wsClients))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBackendRequest("x", "500", time.Second)
		m.PollCycle("error")
		m.SetRoundState(1, 2)
		m.SetPollHealth(2)
		m.Submission("ineligible")
		m.StakingTx("withdraw", "failed")
		m.SetSpotPrice(3000)
		m.SetWSClients(1)
		m.SetPredictionCount(4)
	})
}
