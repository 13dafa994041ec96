package routes_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"l2resolver/ens"
	"l2resolver/gateway"
	"l2resolver/gateway/middleware"
	"l2resolver/gateway/routes"
	"l2resolver/l2"
	"l2resolver/oracle"
	"l2resolver/storage"
)

func newRouter(t *testing.T, ready func(*http.Request) error) http.Handler {
	t.Helper()
	store := common.HexToAddress("0x39Dc8A3A607970FA9F417D284E958D4cA69296C8")
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	chain, err := l2.NewChain(db, store)
	require.NoError(t, err)
	service, err := gateway.NewService(ens.NewStaticRegistry(), oracle.NewLedger(), gateway.NewProver(chain, store, nil), gateway.WithMetrics(nil))
	require.NoError(t, err)

	return routes.New(routes.Config{
		Lookup: gateway.NewHandler(service, time.Second, 5*time.Second),
		Ready:  ready,
		RateLimiter: middleware.NewRateLimiter(map[string]middleware.RateLimit{
			routes.LookupRateLimitKey: {RatePerSecond: 0.01, Burst: 2},
		}, nil),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{Enabled: true, MetricsPrefix: "routes_test"}, nil),
	})
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
	return res
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	router := newRouter(t, nil)

	res := get(router, "/healthz")
	require.Equal(t, http.StatusOK, res.Code)
	require.NotEmpty(t, res.Header().Get(middleware.RequestIDHeader))

	require.Equal(t, http.StatusOK, get(router, "/readyz").Code)

	res = get(router, "/metrics")
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "routes_test_http_requests_total")
}

func TestRouterReportsNotReady(t *testing.T) {
	router := newRouter(t, func(*http.Request) error { return errors.New("l2 rpc unreachable") })
	res := get(router, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, res.Code)
	require.Contains(t, res.Body.String(), "l2 rpc unreachable")
}

func TestRouterRateLimitsLookupsOnly(t *testing.T) {
	router := newRouter(t, nil)
	path := "/0x000000000000000000000000000000000000dead/0x00.json"

	require.Equal(t, http.StatusBadRequest, get(router, path).Code)
	require.Equal(t, http.StatusBadRequest, get(router, path).Code)
	require.Equal(t, http.StatusTooManyRequests, get(router, path).Code)

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, get(router, "/healthz").Code)
	}
}
