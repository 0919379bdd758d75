package workers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"gococo/config"
	"gococo/metrics"
	"gococo/workers/handlers"
)

func testAPI() *handlers.API {
	return handlers.New(handlers.Deps{
		Account:      common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		DefaultChain: 8453,
		Chains:       map[int]config.ChainConfig{8453: {ChainID: 8453, TokenDecimals: 6}},
	})
}

func TestRouterServesRoutes(t *testing.T) {
	r := Router(testAPI())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"defaultChain":8453`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/deposit", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	Router(testAPI()).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/bridge", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRouterExposesMetrics(t *testing.T) {
	metrics.BridgePhases.WithLabelValues("building").Inc()

	rec := httptest.NewRecorder()
	Router(testAPI()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `coco_bridge_phase_transitions_total{phase="building"}`)
}
