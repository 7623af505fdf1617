package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumenchat/governor/internal/ratelimit"
	"github.com/lumenchat/governor/internal/ratelimit/store"
	"github.com/lumenchat/governor/internal/server/handlers"
	servermw "github.com/lumenchat/governor/internal/server/middleware"
)

func newTestServer(t *testing.T, upstream http.Handler) *Server {
	t.Helper()

	set, err := ratelimit.NewPolicySet([]ratelimit.Policy{
		{Name: "api", Window: time.Minute, MaxRequests: 100, Scope: ratelimit.ScopeIP},
	})
	require.NoError(t, err)
	limiter := ratelimit.NewLimiter(set, store.NewMemoryStore(), zap.NewNop())

	gov := servermw.NewGovernor(servermw.GovernorSettings{
		Maintenance: servermw.MaintenanceSettings{
			Enabled:     true,
			ExemptPaths: []string{"/healthz"},
		},
		Rules: []servermw.RouteRule{{Prefix: "/", Policies: []string{"api"}}},
	}, limiter, zap.NewNop())

	return New(Options{
		Host:     "127.0.0.1",
		Port:     0,
		Logger:   zap.NewNop(),
		Governor: gov,
		Health:   handlers.NewHealth("test"),
		Version:  handlers.VersionInfo{Version: "test"},
		Upstream: upstream,
	})
}

func TestOperationalEndpointsBypassGovernance(t *testing.T) {
	srv := newTestServer(t, nil)

	// Maintenance mode is on; the probes and version must keep answering.
	for _, path := range []string{"/healthz", "/readyz", "/version"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, "path %s", path)
	}
}

func TestGovernedRoutesBlockedByMaintenance(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/chat", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDefaultUpstreamAnswers404Envelope(t *testing.T) {
	set, err := ratelimit.NewPolicySet(nil)
	require.NoError(t, err)
	limiter := ratelimit.NewLimiter(set, store.NewMemoryStore(), zap.NewNop())
	gov := servermw.NewGovernor(servermw.GovernorSettings{}, limiter, zap.NewNop())

	srv := New(Options{
		Host:     "127.0.0.1",
		Logger:   zap.NewNop(),
		Governor: gov,
		Health:   handlers.NewHealth("test"),
		Upstream: nil,
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/chat", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestUpstreamReceivesGovernedTraffic(t *testing.T) {
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	set, err := ratelimit.NewPolicySet(nil)
	require.NoError(t, err)
	limiter := ratelimit.NewLimiter(set, store.NewMemoryStore(), zap.NewNop())
	gov := servermw.NewGovernor(servermw.GovernorSettings{}, limiter, zap.NewNop())

	srv := New(Options{
		Host:     "127.0.0.1",
		Logger:   zap.NewNop(),
		Governor: gov,
		Health:   handlers.NewHealth("test"),
		Upstream: upstream,
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/anything", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(servermw.RequestIDHeader))
}
