// Package metrics holds the Prometheus collectors shared by the client's
// components. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the client
type Metrics struct {
	backendRequests  *prometheus.CounterVec
	backendDuration  *prometheus.HistogramVec
	pollCycles       *prometheus.CounterVec
	currentEpoch     prometheus.Gauge
	relevantRound    prometheus.Gauge
	pollHealth       prometheus.Gauge
	submissions      *prometheus.CounterVec
	stakeTxs         *prometheus.CounterVec
	spotPrice        prometheus.Gauge
	wsClients        prometheus.Gauge
	predictionsCount prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		backendRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictpool_backend_requests_total",
				Help: "Total number of backend API requests",
			},
			[]string{"endpoint", "status"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "predictpool_backend_request_duration_seconds",
				Help:    "Backend API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		pollCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictpool_poll_cycles_total",
				Help: "Epoch/round poll cycles by result",
			},
			[]string{"result"},
		),
		currentEpoch: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "predictpool_current_epoch",
				Help: "Id of the current epoch",
			},
		),
		relevantRound: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "predictpool_relevant_round",
				Help: "Id of the relevant round, 0 when there is none",
			},
		),
		pollHealth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "predictpool_poll_health",
				Help: "Poll health (0=healthy, 1=degraded, 2=stale)",
			},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictpool_prediction_submissions_total",
				Help: "Prediction submission attempts by outcome",
			},
			[]string{"outcome"},
		),
		stakeTxs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictpool_staking_transactions_total",
				Help: "Staking contract transactions by action and result",
			},
			[]string{"action", "result"},
		),
		spotPrice: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "predictpool_spot_price",
				Help: "Last observed spot price of the round asset",
			},
		),
		wsClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "predictpool_ws_clients",
				Help: "Connected WebSocket clients",
			},
		),
		predictionsCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "predictpool_user_predictions",
				Help: "Number of predictions known for the connected wallet",
			},
		),
	}

	reg.MustRegister(
		m.backendRequests,
		m.backendDuration,
		m.pollCycles,
		m.currentEpoch,
		m.relevantRound,
		m.pollHealth,
		m.submissions,
		m.stakeTxs,
		m.spotPrice,
		m.wsClients,
		m.predictionsCount,
	)

	return m
}

// ObserveBackendRequest records one backend call.
func (m *Metrics) ObserveBackendRequest(endpoint, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(endpoint, status).Inc()
	m.backendDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// PollCycle counts a poll cycle by result ("ok", "error", "empty").
func (m *Metrics) PollCycle(result string) {
	if m == nil {
		return
	}
	m.pollCycles.WithLabelValues(result).Inc()
}

// SetRoundState exports the current epoch and relevant round ids.
func (m *Metrics) SetRoundState(epochID, roundID int64) {
	if m == nil {
		return
	}
	m.currentEpoch.Set(float64(epochID))
	m.relevantRound.Set(float64(roundID))
}

// SetPollHealth exports the poll health level.
func (m *Metrics) SetPollHealth(level int) {
	if m == nil {
		return
	}
	m.pollHealth.Set(float64(level))
}

// Submission counts a prediction submission outcome.
func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// StakingTx counts a staking transaction.
func (m *Metrics) StakingTx(action, result string) {
	if m == nil {
		return
	}
	m.stakeTxs.WithLabelValues(action, result).Inc()
}

// SetSpotPrice exports the last spot price.
func (m *Metrics) SetSpotPrice(price float64) {
	if m == nil {
		return
	}
	m.spotPrice.Set(price)
}

// SetWSClients exports the number of WebSocket clients.
func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}

// SetPredictionCount exports the size of the prediction map.
func (m *Metrics) SetPredictionCount(n int) {
	if m == nil {
		return
	}
	m.predictionsCount.Set(float64(n))
}
