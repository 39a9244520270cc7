package ipc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "browsercast",
		Name:      "ws_connections",
		Help:      "Open duplex channels.",
	})
	metricMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "browsercast",
		Name:      "ws_messages_total",
		Help:      "Inbound channel messages by kind.",
	}, []string{"kind"})
	metricMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "browsercast",
		Name:      "ws_messages_dropped_total",
		Help:      "Inbound messages dropped by the per-connection rate limit.",
	})
	metricFramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "browsercast",
		Name:      "frames_sent_total",
		Help:      "Frames written to clients.",
	})
	metricFrameBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "browsercast",
		Name:      "frame_bytes_total",
		Help:      "Frame payload bytes written to clients.",
	})
	metricSessionStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "browsercast",
		Name:      "session_starts_total",
		Help:      "start-session requests by outcome.",
	}, []string{"result"})

	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "browsercast",
		Name:      "sessions_active",
		Help:      "Sessions held by the registry.",
	})
	metricActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "browsercast",
		Name:      "streams_active",
		Help:      "Running frame streams.",
	})
	metricBrowserGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "browsercast",
		Name:      "browser_generation",
		Help:      "Generation of the browser process serving sessions.",
	})
	metricBrowserRelaunches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "browsercast",
		Name:      "browser_relaunches",
		Help:      "Browser relaunches since start.",
	})
	metricInputFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "browsercast",
		Name:      "input_failures",
		Help:      "Input events that failed to inject since start.",
	})
)

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.refreshGauges()
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) refreshGauges() {
	metricActiveSessions.Set(float64(s.registry.Len()))
	snap := s.metrics.Snapshot()
	metricActiveStreams.Set(float64(snap.ActiveStreams))
	metricBrowserGeneration.Set(float64(snap.BrowserGeneration))
	metricBrowserRelaunches.Set(float64(snap.BrowserRelaunch))
	metricInputFailures.Set(float64(snap.InputFailed))
}
