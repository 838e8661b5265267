package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "lodestone"

// Metrics holds the Prometheus collectors for the connection front-end.
// All methods are nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	// ConnectionsTotal counts every accepted TCP connection.
	ConnectionsTotal prometheus.Counter
	// ConnectionsActive tracks connections currently owned by a worker.
	ConnectionsActive prometheus.Gauge
	// ConnectionsRejected counts connections closed on accept, labeled by reason.
	ConnectionsRejected *prometheus.CounterVec
	// Handshakes counts parsed handshakes, labeled by requested next state.
	Handshakes *prometheus.CounterVec
	// ProtocolErrors counts connections terminated by bad traffic, labeled by reason.
	ProtocolErrors *prometheus.CounterVec
	// StatusExchanges counts status/ping exchanges, labeled by result.
	StatusExchanges *prometheus.CounterVec
	// Logins counts login attempts, labeled by result.
	Logins *prometheus.CounterVec
	// SessionsEvicted counts sessions displaced by a newer login under the same name.
	SessionsEvicted prometheus.Counter
	// PlayersOnline tracks the size of the player registry.
	PlayersOnline prometheus.Gauge
}

// New creates and registers the metrics with reg. If reg is nil the metrics
// are created but not registered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "accepted_total",
			Help:      "Total number of accepted connections",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "active",
			Help:      "Current number of open connections",
		}),
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "rejected_total",
			Help:      "Connections closed immediately after accept",
		}, []string{"reason"}),
		Handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "handshakes_total",
			Help:      "Handshakes received, by requested next state",
		}, []string{"next_state"}),
		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "errors_total",
			Help:      "Connections terminated because of a framing or protocol error",
		}, []string{"reason"}),
		StatusExchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status",
			Name:      "exchanges_total",
			Help:      "Status request/ping exchanges, by result",
		}, []string{"result"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "login",
			Name:      "attempts_total",
			Help:      "Login attempts, by result",
		}, []string{"result"}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "login",
			Name:      "sessions_evicted_total",
			Help:      "Sessions closed because the same name logged in again",
		}),
		PlayersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "players",
			Name:      "online",
			Help:      "Current number of registered player sessions",
		}),
	}

	if reg != nil {
		collectors := []prometheus.Collector{
			m.ConnectionsTotal,
			m.ConnectionsActive,
			m.ConnectionsRejected,
			m.Handshakes,
			m.ProtocolErrors,
			m.StatusExchanges,
			m.Logins,
			m.SessionsEvicted,
			m.PlayersOnline,
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				// Ignore AlreadyRegisteredError (server restart re-registers).
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	}

	return m
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

func (m *Metrics) ConnectionRejected(reason string) {
	if m == nil {
		return
	}
	m.ConnectionsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Handshake(nextState string) {
	if m == nil {
		return
	}
	m.Handshakes.WithLabelValues(nextState).Inc()
}

func (m *Metrics) ProtocolError(reason string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) StatusExchange(result string) {
	if m == nil {
		return
	}
	m.StatusExchanges.WithLabelValues(result).Inc()
}

func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionEvicted() {
	if m == nil {
		return
	}
	m.SessionsEvicted.Inc()
}

func (m *Metrics) SetPlayersOnline(n int) {
	if m == nil {
		return
	}
	m.PlayersOnline.Set(float64(n))
}

// Server serves the metrics gathered by a registry over HTTP.
type Server struct {
	httpServer *http.Server
	logger     logrus.FieldLogger
}

// NewServer builds the metrics endpoint. /metrics serves the registry and
// /healthz always responds 200 while the process is up.
func NewServer(addr string, gatherer prometheus.Gatherer, logger logrus.FieldLogger) *Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens in the background until Shutdown is called.
func (s *Server) Start() {
	s.logger.Infof("serving metrics on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("metrics server exited: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
