package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thesyncim/mediagrid"
)

// Metrics holds Prometheus counters and gauges for the compositor and the
// recorder.
type Metrics struct {
	registry           *prometheus.Registry
	framesDrawnTotal   prometheus.Counter
	drawDuration       prometheus.Histogram
	tiles              prometheus.Gauge
	chunksWrittenTotal *prometheus.CounterVec
	bytesWrittenTotal  *prometheus.CounterVec
	writeErrorsTotal   prometheus.Counter
	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
}

// New creates and registers Prometheus metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	framesDrawnTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediagrid_frames_drawn_total",
		Help: "Total number of composite frames drawn",
	})
	drawDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mediagrid_draw_duration_seconds",
		Help:    "Time spent drawing one composite frame",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
	tiles := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mediagrid_tiles",
		Help: "Number of tiles currently drawn",
	})
	chunksWrittenTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagrid_chunks_written_total",
		Help: "Total number of encoded chunks written to the sink",
	}, []string{"kind"})
	bytesWrittenTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagrid_bytes_written_total",
		Help: "Total number of encoded bytes written to the sink",
	}, []string{"kind"})
	writeErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediagrid_write_errors_total",
		Help: "Total number of failed sink writes",
	})
	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediagrid_http_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediagrid_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		framesDrawnTotal,
		drawDuration,
		tiles,
		chunksWrittenTotal,
		bytesWrittenTotal,
		writeErrorsTotal,
		requestsTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:           registry,
		framesDrawnTotal:   framesDrawnTotal,
		drawDuration:       drawDuration,
		tiles:              tiles,
		chunksWrittenTotal: chunksWrittenTotal,
		bytesWrittenTotal:  bytesWrittenTotal,
		writeErrorsTotal:   writeErrorsTotal,
		requestsTotal:      requestsTotal,
		errorsTotal:        errorsTotal,
	}
}

// ObserveDraw records one composite draw. It matches
// mediagrid.CompositorConfig.OnDraw.
func (m *Metrics) ObserveDraw(d time.Duration) {
	m.framesDrawnTotal.Inc()
	m.drawDuration.Observe(d.Seconds())
}

// ObserveWrite records one sink write. It matches
// mediagrid.RecorderConfig.OnWrite.
func (m *Metrics) ObserveWrite(c mediagrid.Chunk, err error) {
	if err != nil {
		m.writeErrorsTotal.Inc()
		return
	}
	kind := c.Kind.String()
	m.chunksWrittenTotal.WithLabelValues(kind).Inc()
	m.bytesWrittenTotal.WithLabelValues(kind).Add(float64(len(c.Data)))
}

// SetTiles sets the tiles gauge.
func (m *Metrics) SetTiles(n int) {
	m.tiles.Set(float64(n))
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

// responseWriter captures the status code for metrics.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// RequestMiddleware returns chi-compatible middleware that records request count
// and error count (status >= 400) in the given Metrics.
func RequestMiddleware(m *Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrap := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrap, r)
			m.IncRequests()
			if wrap.status >= 400 {
				m.IncErrors()
			}
		})
	}
}
