package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const metricsNamespace = "thermofit"

// PrometheusMetricsRecorder exports operation outcomes, oracle solve timings
// and non-finite likelihood counts. It satisfies MetricsRecorder and the
// residual function Metrics contract.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	solves     *prometheus.HistogramVec
	nonFinite  *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the collectors on reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Service operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"operation"}),
		solves: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "solve_duration_seconds",
			Help:      "Equilibrium oracle solve latency by residual family and outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"residual", "outcome"}),
		nonFinite: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "nonfinite_likelihood_total",
			Help:      "Likelihood evaluations replaced by the -Inf sentinel.",
		}, []string{"residual"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.durations, r.solves, r.nonFinite} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.operations.WithLabelValues(operation, outcome(success)).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveSolve records one equilibrium oracle call.
func (r *PrometheusMetricsRecorder) ObserveSolve(family string, duration time.Duration, success bool) {
	r.solves.WithLabelValues(family, outcome(success)).Observe(duration.Seconds())
}

// ObserveNonFinite counts a likelihood that collapsed to -Inf.
func (r *PrometheusMetricsRecorder) ObserveNonFinite(family string) {
	r.nonFinite.WithLabelValues(family).Inc()
}

// OTelTracer adapts an OpenTelemetry tracer to the service Tracer contract.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer builds a Tracer from provider. A nil provider disables
// tracing.
func NewOTelTracer(provider trace.TracerProvider) *OTelTracer {
	if provider == nil {
		return &OTelTracer{}
	}
	return &OTelTracer{tracer: provider.Tracer("thermofit/internal/core")}
}

// Start implements the Tracer interface.
func (t *OTelTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	if t.tracer == nil {
		return ctx, noopSpan{}
	}
	ctx, span := t.tracer.Start(ctx, operation)
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}
