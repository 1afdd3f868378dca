// Package metrics implements C14: inbound/outbound frame counters,
// request latency, per-code error counters, circuit-breaker state
// transitions, and registry sizes, held in a private registry. No HTTP
// route serves them; callers reach the collectors through Registry().
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns one Registry's worth of collectors so a test can spin
// up an isolated instance instead of fighting the global default
// registry.
type Recorder struct {
	registry *prometheus.Registry

	framesIn     *prometheus.CounterVec
	framesOut    *prometheus.CounterVec
	bytesIn      prometheus.Counter
	bytesOut     prometheus.Counter
	requestSecs  *prometheus.HistogramVec
	errorsByCode *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
	connTotal    prometheus.Gauge
	connByTenant *prometheus.GaugeVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		framesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pmsync_frames_in_total",
			Help: "Inbound WebSocket frames received, by message type.",
		}, []string{"type"}),
		framesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pmsync_frames_out_total",
			Help: "Outbound WebSocket frames sent, by message type.",
		}, []string{"type"}),
		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pmsync_bytes_in_total",
			Help: "Inbound WebSocket bytes received.",
		}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pmsync_bytes_out_total",
			Help: "Outbound WebSocket bytes sent.",
		}),
		requestSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pmsync_request_duration_seconds",
			Help:    "Dispatcher handler latency, by message type.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"type"}),
		errorsByCode: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pmsync_errors_total",
			Help: "Handler errors, by error kind.",
		}, []string{"code"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pmsync_circuit_breaker_state",
			Help: "Circuit breaker state: 0=closed, 1=half-open, 2=open.",
		}, []string{"name"}),
		connTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pmsync_connections_total",
			Help: "Live WebSocket connections across all tenants.",
		}),
		connByTenant: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pmsync_connections_by_tenant",
			Help: "Live WebSocket connections, by tenant.",
		}, []string{"tenant_id"}),
	}
	reg.MustRegister(r.framesIn, r.framesOut, r.bytesIn, r.bytesOut,
		r.requestSecs, r.errorsByCode, r.breakerState, r.connTotal, r.connByTenant)
	return r
}

// Registry exposes the underlying collector registry so a caller can
// gather or render it (e.g. via promhttp.HandlerFor); no route in
// internal/httpapi does so.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) FrameIn(msgType string, bytes int) {
	r.framesIn.WithLabelValues(msgType).Inc()
	r.bytesIn.Add(float64(bytes))
}

func (r *Recorder) FrameOut(msgType string, bytes int) {
	r.framesOut.WithLabelValues(msgType).Inc()
	r.bytesOut.Add(float64(bytes))
}

func (r *Recorder) RecordError(code string) {
	r.errorsByCode.WithLabelValues(code).Inc()
}

func (r *Recorder) SetBreakerState(name string, state int) {
	r.breakerState.WithLabelValues(name).Set(float64(state))
}

func (r *Recorder) SetConnectionCounts(total int, byTenant map[string]int) {
	r.connTotal.Set(float64(total))
	for tenantID, count := range byTenant {
		r.connByTenant.WithLabelValues(tenantID).Set(float64(count))
	}
}

// Timer samples an observation when it goes out of scope, mirroring
// the original's RAII latency timer: `defer metrics.StartTimer(...)()`.
type Timer struct {
	start time.Time
	hist  prometheus.Observer
}

// StartTimer begins timing msgType and returns a function that records
// the elapsed duration; call it via defer at the top of the handler.
func (r *Recorder) StartTimer(msgType string) func() {
	t := Timer{start: time.Now(), hist: r.requestSecs.WithLabelValues(msgType)}
	return func() {
		t.hist.Observe(time.Since(t.start).Seconds())
	}
}
