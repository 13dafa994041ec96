package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, req *http.Request) int {
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res.Code
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"lookup": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("lookup")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/0xabc/0x1234", nil)
	require.Equal(t, http.StatusOK, serve(handler, req))
	require.Equal(t, http.StatusTooManyRequests, serve(handler, req))
}

func TestRateLimiterSeparatesRoutesAndClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"lookup": {RatePerSecond: 1, Burst: 1},
		"health": {RatePerSecond: 1, Burst: 1},
	}, nil)
	lookup := limiter.Middleware("lookup")(okHandler())
	health := limiter.Middleware("health")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	require.Equal(t, http.StatusOK, serve(lookup, req))
	require.Equal(t, http.StatusOK, serve(health, req))
	require.Equal(t, http.StatusTooManyRequests, serve(lookup, req))

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.Header.Set("X-Real-IP", "10.0.0.9")
	require.Equal(t, http.StatusOK, serve(lookup, other))
}

func TestRateLimiterPassesUnknownRoutes(t *testing.T) {
	limiter := NewRateLimiter(nil, nil)
	handler := limiter.Middleware("lookup")(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, serve(handler, req))
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{"lookup": {RatePerSecond: 0.001, Burst: 1}}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("lookup")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, serve(handler, req))
	require.Equal(t, http.StatusTooManyRequests, serve(handler, req))

	now = now.Add(10 * time.Minute)
	require.Equal(t, http.StatusOK, serve(handler, req))
	require.Len(t, limiter.visitors, 1)
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, "abc-123", seen)
	require.Equal(t, "abc-123", res.Header().Get(RequestIDHeader))

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Len(t, seen, 36)
	require.Equal(t, seen, res.Header().Get(RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example"}})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, "https://app.example", res.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Empty(t, res.Header().Get("Access-Control-Allow-Origin"))
}
