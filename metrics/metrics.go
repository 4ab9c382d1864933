// Package metrics exposes Prometheus instrumentation for the gateway.
//
// A nil *Recorder is valid and records nothing, so components can take an
// optional recorder without guarding every call site.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "tool_executor"

// Outcome labels for executions and calls.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Recorder owns a private registry and the gateway's collectors.
type Recorder struct {
	registry *prometheus.Registry

	calls             *prometheus.CounterVec
	callDuration      *prometheus.HistogramVec
	connects          *prometheus.CounterVec
	connected         prometheus.Gauge
	executions        *prometheus.CounterVec
	executionDuration prometheus.Histogram
	overflow          *prometheus.CounterVec
}

// New creates a Recorder with process and Go runtime collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Capability invocations by service and status.",
		}, []string{"service", "status"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Capability invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Connection attempts by service and status.",
		}, []string{"service", "status"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_services",
			Help:      "Services with a live connection.",
		}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Script executions by outcome.",
		}, []string{"outcome"}),
		executionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Script execution wall time.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600},
		}),
		overflow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overflow_total",
			Help:      "Oversized results by persistence status.",
		}, []string{"status"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.calls, r.callDuration, r.connects, r.connected,
		r.executions, r.executionDuration, r.overflow,
	)
	return r
}

// ObserveCall records one capability invocation.
func (r *Recorder) ObserveCall(service string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.calls.WithLabelValues(service, status(err)).Inc()
	r.callDuration.WithLabelValues(service).Observe(d.Seconds())
}

// ObserveConnect records one connection attempt.
func (r *Recorder) ObserveConnect(service string, err error) {
	if r == nil {
		return
	}
	r.connects.WithLabelValues(service, status(err)).Inc()
}

// SetConnected sets the number of live connections.
func (r *Recorder) SetConnected(n int) {
	if r == nil {
		return
	}
	r.connected.Set(float64(n))
}

// ObserveExecution records one script execution.
func (r *Recorder) ObserveExecution(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.executions.WithLabelValues(outcome).Inc()
	r.executionDuration.Observe(d.Seconds())
}

// ObserveOverflow records an oversized result and whether it was persisted.
func (r *Recorder) ObserveOverflow(err error) {
	if r == nil {
		return
	}
	r.overflow.WithLabelValues(status(err)).Inc()
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics listener started", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func status(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	default:
		return StatusError
	}
}
