package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/inventory-portal/internal/realtime"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	realtimeState   prometheus.Gauge
	reconnects      prometheus.Counter
	reconnectDelay  prometheus.Gauge
	messagesQueued  prometheus.Counter
	messagesDropped *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	state := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portal_realtime_state",
		Help: "Status koneksi realtime (0=disconnected, 1=connecting, 2=connected, 3=authenticated).",
	})
	reconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_realtime_reconnects_total",
		Help: "Jumlah reconnect yang dijadwalkan.",
	})
	delay := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portal_realtime_reconnect_delay_seconds",
		Help: "Jeda reconnect terakhir yang dijadwalkan.",
	})
	queued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_realtime_messages_queued_total",
		Help: "Pesan keluar yang ditahan selama koneksi belum terbuka.",
	})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_realtime_messages_dropped_total",
		Help: "Pesan yang dibuang berdasarkan alasan.",
	}, []string{"reason"})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portal_session_active",
		Help: "1 bila ada sesi login aktif.",
	})
	registry.MustRegister(requests, duration, state, reconnects, delay, queued, dropped, sessions)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		realtimeState:   state,
		reconnects:      reconnects,
		reconnectDelay:  delay,
		messagesQueued:  queued,
		messagesDropped: dropped,
		sessionsActive:  sessions,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// SessionChanged tracks whether someone is signed in.
func (m *Metrics) SessionChanged(active bool) {
	if m == nil {
		return
	}
	if active {
		m.sessionsActive.Set(1)
		return
	}
	m.sessionsActive.Set(0)
}

// Realtime returns an observer feeding the realtime client metrics.
func (m *Metrics) Realtime() realtime.Observer {
	return realtimeObserver{m: m}
}

type realtimeObserver struct {
	m *Metrics
}

func (o realtimeObserver) StateChanged(state realtime.State) {
	if o.m != nil {
		o.m.realtimeState.Set(float64(state))
	}
}

func (o realtimeObserver) ReconnectScheduled(_ int, delay time.Duration) {
	if o.m != nil {
		o.m.reconnects.Inc()
		o.m.reconnectDelay.Set(delay.Seconds())
	}
}

func (o realtimeObserver) MessageQueued() {
	if o.m != nil {
		o.m.messagesQueued.Inc()
	}
}

func (o realtimeObserver) MessageDropped(reason string) {
	if o.m != nil {
		o.m.messagesDropped.WithLabelValues(reason).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
