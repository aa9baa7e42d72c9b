package promplate

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace prefixes every metric name. Default: "promplate"
	Namespace string

	// Buckets are the duration histogram buckets in seconds. Default: prometheus.DefBuckets
	Buckets []float64
}

// Metrics records runnable executions with Prometheus. Attach it to runnables
// with Instrument or AddCallbackFactories(m.Callback()).
//
// Every metric carries the runnable name and the run mode. A run that fails
// with an error is entered but never left, so failures show up as
// enters_total minus leaves_total.
type Metrics struct {
	enters     *prometheus.CounterVec
	leaves     *prometheus.CounterVec
	increments *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with registerer
// (prometheus.DefaultRegisterer when nil). Collectors already registered under
// the same names are reused.
func NewMetrics(registerer prometheus.Registerer, config MetricsConfig) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if config.Namespace == "" {
		config.Namespace = DefaultMetricsNamespace
	}
	if len(config.Buckets) == 0 {
		config.Buckets = prometheus.DefBuckets
	}

	labels := []string{MetricLabelRunnable, MetricLabelMode}
	m := &Metrics{
		enters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: MetricsSubsystem,
			Name:      MetricEnters,
			Help:      "Runnable executions started.",
		}, labels),
		leaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: MetricsSubsystem,
			Name:      MetricLeaves,
			Help:      "Runnable executions finished, by outcome.",
		}, append(labels, MetricLabelOutcome)),
		increments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: MetricsSubsystem,
			Name:      MetricIncrements,
			Help:      "Output increments: completions, streamed deltas and finished children.",
		}, labels),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: MetricsSubsystem,
			Name:      MetricDuration,
			Help:      "Runnable execution time from enter to leave.",
			Buckets:   config.Buckets,
		}, labels),
	}

	var err error
	if m.enters, err = register(registerer, m.enters); err != nil {
		return nil, err
	}
	if m.leaves, err = register(registerer, m.leaves); err != nil {
		return nil, err
	}
	if m.increments, err = register(registerer, m.increments); err != nil {
		return nil, err
	}
	if m.duration, err = register(registerer, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	err := registerer.Register(c)
	if err == nil {
		return c, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, NewMetricsError(err)
}

// NewMetricsCallback registers the default collectors and returns the callback
// factory recording into them.
func NewMetricsCallback(registerer prometheus.Registerer) (CallbackFactory, error) {
	m, err := NewMetrics(registerer, MetricsConfig{})
	if err != nil {
		return nil, err
	}
	return m.Callback(), nil
}

// Callback returns a factory; each invocation gets its own timer.
func (m *Metrics) Callback() CallbackFactory {
	return func() Callback {
		return &metricsCallback{metrics: m}
	}
}

// Instrument attaches the metrics callback to every runnable given.
func (m *Metrics) Instrument(runnables ...Runnable) {
	for _, r := range runnables {
		r.AddCallbackFactories(m.Callback())
	}
}

type metricsCallback struct {
	BaseCallback
	metrics *Metrics
	name    string
	mode    string
	start   time.Time
	ended   bool
}

func (cb *metricsCallback) OnEnter(ctx context.Context, r Runnable, c *Context, cfg Config) (*Context, Config, error) {
	cb.name = r.Name()
	cb.mode = RunMode(ctx)
	cb.start = time.Now()
	cb.metrics.enters.WithLabelValues(cb.name, cb.mode).Inc()
	return c, cfg, nil
}

func (cb *metricsCallback) MidProcess(context.Context, *Context) error {
	cb.metrics.increments.WithLabelValues(cb.name, cb.mode).Inc()
	return nil
}

func (cb *metricsCallback) EndProcess(context.Context, *Context) error {
	cb.ended = true
	return nil
}

// OnLeave runs after a normal finish or a caught or passing Jump; only the
// former has gone through EndProcess.
func (cb *metricsCallback) OnLeave(_ context.Context, _ Runnable, c *Context, cfg Config) (*Context, Config, error) {
	outcome := OutcomeJumped
	if cb.ended {
		outcome = OutcomeCompleted
	}
	cb.metrics.leaves.WithLabelValues(cb.name, cb.mode, outcome).Inc()
	cb.metrics.duration.WithLabelValues(cb.name, cb.mode).Observe(time.Since(cb.start).Seconds())
	return c, cfg, nil
}
