package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes Prometheus counters for the client runtime.
type Recorder struct {
	requestsTotal   *prometheus.CounterVec
	retriesTotal    prometheus.Counter
	refreshTotal    *prometheus.CounterVec
	framesTotal     *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	requestDuration *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stocklive_requests_total",
				Help: "Total number of outbound API requests",
			},
			[]string{"method", "status"},
		),
		retriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "stocklive_request_retries_total",
				Help: "Total number of requests resent after a credential refresh",
			},
		),
		refreshTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stocklive_refresh_total",
				Help: "Total number of credential refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
		framesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stocklive_stream_frames_total",
				Help: "Total number of websocket frames by result",
			},
			[]string{"result"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stocklive_last_price",
				Help: "Last observed price for a ticker",
			},
			[]string{"ticker"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stocklive_request_duration_seconds",
				Help:    "Duration of outbound API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

// RecordRequest records an outbound request and its final status.
func (r *Recorder) RecordRequest(method, status string) {
	r.requestsTotal.WithLabelValues(method, status).Inc()
}

// RecordRetry records a resend after a successful refresh.
func (r *Recorder) RecordRetry() {
	r.retriesTotal.Inc()
}

// RecordRefresh records a refresh attempt outcome ("renewed" or "failed").
func (r *Recorder) RecordRefresh(outcome string) {
	r.refreshTotal.WithLabelValues(outcome).Inc()
}

// RecordFrame records a websocket frame result ("merged" or "malformed").
func (r *Recorder) RecordFrame(result string) {
	r.framesTotal.WithLabelValues(result).Inc()
}

// RecordLastPrice records the last price for a ticker.
func (r *Recorder) RecordLastPrice(ticker string, price float64) {
	r.lastPrice.WithLabelValues(ticker).Set(price)
}

// RecordLatency records request latency in seconds.
func (r *Recorder) RecordLatency(method string, seconds float64) {
	r.requestDuration.WithLabelValues(method).Observe(seconds)
}
