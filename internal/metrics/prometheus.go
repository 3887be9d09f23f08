package metrics

import (
	"net/http"
	"time"

	"TradeMate/internal/services/policy"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exposes decision engine metrics on its own registry
type Recorder struct {
	registry *prometheus.Registry

	decisions          *prometheus.CounterVec
	fallbacks          *prometheus.CounterVec
	indicatorFailures  *prometheus.CounterVec
	trainingSteps      *prometheus.CounterVec
	policyLoss         prometheus.Histogram
	epsilon            prometheus.Gauge
	analysisLatency    *prometheus.HistogramVec
	recordedPrices     *prometheus.CounterVec
	realizedReward     *prometheus.HistogramVec
	checkpointFailures prometheus.Counter
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trademate_decisions_total",
				Help: "Recommendations issued, by decision path and signal",
			},
			[]string{"path", "signal"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trademate_policy_fallbacks_total",
				Help: "Recommendations that bypassed the policy, by reason",
			},
			[]string{"reason"},
		),
		indicatorFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trademate_indicator_failures_total",
				Help: "Indicator computations that fell back to their default",
			},
			[]string{"indicator"},
		),
		trainingSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trademate_training_steps_total",
				Help: "Train calls, by whether a network update happened",
			},
			[]string{"updated"},
		),
		policyLoss: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trademate_policy_loss",
				Help:    "Minibatch loss of policy updates",
				Buckets: prometheus.ExponentialBuckets(1e-6, 10, 10),
			},
		),
		epsilon: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trademate_policy_epsilon",
				Help: "Current exploration rate",
			},
		),
		analysisLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trademate_analysis_duration_seconds",
				Help:    "Duration of trade analyses in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"symbol"},
		),
		recordedPrices: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trademate_recorded_prices_total",
				Help: "Klines stored, by symbol",
			},
			[]string{"symbol"},
		),
		realizedReward: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trademate_realized_reward",
				Help:    "Reward assigned to past actions",
				Buckets: []float64{-0.05, -0.02, -0.01, -0.005, 0, 0.005, 0.01, 0.02, 0.05},
			},
			[]string{"action"},
		),
		checkpointFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trademate_checkpoint_failures_total",
				Help: "Policy checkpoints that could not be written",
			},
		),
	}

	r.registry.MustRegister(
		r.decisions,
		r.fallbacks,
		r.indicatorFailures,
		r.trainingSteps,
		r.policyLoss,
		r.epsilon,
		r.analysisLatency,
		r.recordedPrices,
		r.realizedReward,
		r.checkpointFailures,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveDecision(path, signal string) {
	r.decisions.WithLabelValues(path, signal).Inc()
}

func (r *Recorder) ObserveFallback(reason string) {
	r.fallbacks.WithLabelValues(reason).Inc()
}

func (r *Recorder) ObserveAnalysis(symbol string, elapsed time.Duration) {
	r.analysisLatency.WithLabelValues(symbol).Observe(elapsed.Seconds())
}

func (r *Recorder) IndicatorFailed(indicator string) {
	r.indicatorFailures.WithLabelValues(indicator).Inc()
}

func (r *Recorder) ObserveTraining(stats policy.TrainStats) {
	if !stats.Trained {
		r.trainingSteps.WithLabelValues("false").Inc()
		return
	}
	r.trainingSteps.WithLabelValues("true").Inc()
	r.policyLoss.Observe(stats.Loss)
	r.epsilon.Set(stats.Epsilon)
}

func (r *Recorder) SetEpsilon(epsilon float64) {
	r.epsilon.Set(epsilon)
}

func (r *Recorder) ObserveReward(action string, reward float64) {
	r.realizedReward.WithLabelValues(action).Observe(reward)
}

func (r *Recorder) PricesRecorded(symbol string, count int) {
	r.recordedPrices.WithLabelValues(symbol).Add(float64(count))
}

func (r *Recorder) CheckpointFailed() {
	r.checkpointFailures.Inc()
}
