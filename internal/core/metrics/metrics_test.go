package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.ConnectionRejected("server_full")
	m.Handshake("status")
	m.ProtocolError("malformed")
	m.StatusExchange("ok")
	m.Login("success")
	m.SessionEvicted()
	m.SetPlayersOnline(3)
}

func TestMetrics_Counters(t *testing.T) {
	m := New(nil)

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.Login("success")
	m.Login("success")
	m.Login("invalid_name")
	m.SetPlayersOnline(2)

	if got := testutil.ToFloat64(m.ConnectionsTotal); got != 2 {
		t.Errorf("ConnectionsTotal want = 2, got = %v", got)
	}
	if got := testutil.ToFloat64(m.ConnectionsActive); got != 1 {
		t.Errorf("ConnectionsActive want = 1, got = %v", got)
	}
	if got := testutil.ToFloat64(m.Logins.WithLabelValues("success")); got != 2 {
		t.Errorf("Logins{success} want = 2, got = %v", got)
	}
	if got := testutil.ToFloat64(m.PlayersOnline); got != 2 {
		t.Errorf("PlayersOnline want = 2, got = %v", got)
	}
}

func TestServer_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Handshake("login")
	// Registering twice must not panic.
	New(reg)

	logger, _ := test.NewNullLogger()
	srv := NewServer("127.0.0.1:0", reg, logger)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status want = 200, got = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `lodestone_protocol_handshakes_total{next_state="login"} 1`) {
		t.Errorf("expected handshake counter in /metrics output, got:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/healthz status want = 200, got = %d", rec.Code)
	}
}
