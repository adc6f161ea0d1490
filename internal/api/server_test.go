package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alejandrodnm/updownbot/internal/api"
	"github.com/alejandrodnm/updownbot/internal/application/closure"
	"github.com/alejandrodnm/updownbot/internal/application/engine"
	"github.com/alejandrodnm/updownbot/internal/application/ledger"
	"github.com/alejandrodnm/updownbot/internal/application/sizing"
	"github.com/alejandrodnm/updownbot/internal/application/strategy"
	"github.com/alejandrodnm/updownbot/internal/application/trend"
	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStatus map[string]domain.MarketStatus

func (s staticStatus) MarketStatus(_ context.Context, m domain.Market) (domain.MarketStatus, error) {
	return s[m.ID], nil
}

type testEnv struct {
	router http.Handler
	mgr    *engine.Manager
	ldg    *ledger.Ledger
	res    *closure.Resolver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ldg := ledger.New()
	decider := strategy.New(strategy.Config{}, ldg, sizing.New(sizing.Config{}))
	mgr := engine.New(engine.Config{}, trend.NewDetector(trend.Config{}), ldg, decider, nil, nil)
	status := staticStatus{"0xdone": {Closed: true, Winner: domain.SideUp}}
	res := closure.New(closure.Config{}, mgr, status, nil, nil)

	ctx := context.Background()
	end := time.Now().Add(-time.Minute)
	require.NoError(t, mgr.Track(ctx, domain.Market{ID: "0xopen", Type: "btc-15m", Slug: "btc-updown-15m-1", EndAt: time.Now().Add(10 * time.Minute)}))
	require.NoError(t, mgr.Track(ctx, domain.Market{ID: "0xdone", Type: "eth-15m", EndAt: end}))

	_, err := ldg.RecordFill("0xopen", domain.SideUp, 48, 0.52, time.Now())
	require.NoError(t, err)
	_, err = ldg.RecordFill("0xopen", domain.SideDown, 48, 0.44, time.Now())
	require.NoError(t, err)
	_, err = ldg.RecordFill("0xdone", domain.SideUp, 10, 0.40, end.Add(-time.Minute))
	require.NoError(t, err)

	_, err = res.PollOnce(ctx)
	require.NoError(t, err)

	return &testEnv{
		router: api.NewServer(mgr, ldg, res).Routes(),
		mgr:    mgr,
		ldg:    ldg,
		res:    res,
	}
}

func (e *testEnv) get(t *testing.T, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)
	w := env.get(t, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t)
	env.get(t, "/health", nil)
	w := env.get(t, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "updownbot_http_requests_total")
}

func TestServer_ListMarkets(t *testing.T) {
	env := newTestEnv(t)

	var markets []map[string]any
	w := env.get(t, "/api/v1/markets", &markets)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, markets, 2)

	// ordenados por hora de cierre
	assert.Equal(t, "0xdone", markets[0]["id"])
	assert.Equal(t, true, markets[0]["closed"])
	assert.Equal(t, "Up", markets[0]["winner"])
	assert.Equal(t, "0xopen", markets[1]["id"])
}

func TestServer_GetMarketPosition(t *testing.T) {
	env := newTestEnv(t)

	var m struct {
		ID       string `json:"id"`
		Position struct {
			UpShares      float64  `json:"up_shares"`
			DownShares    float64  `json:"down_shares"`
			TotalCost     float64  `json:"total_cost"`
			CostPerPair   *float64 `json:"cost_per_pair"`
			PnLIfUpWins   float64  `json:"pnl_if_up_wins"`
			PnLIfDownWins float64  `json:"pnl_if_down_wins"`
		} `json:"position"`
		SecondsToClose float64 `json:"seconds_to_close"`
	}
	w := env.get(t, "/api/v1/markets/0xopen", &m)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "0xopen", m.ID)
	assert.InDelta(t, 48, m.Position.UpShares, 1e-9)
	assert.InDelta(t, 46.08, m.Position.TotalCost, 1e-9)
	require.NotNil(t, m.Position.CostPerPair)
	assert.InDelta(t, 0.96, *m.Position.CostPerPair, 1e-9)
	assert.InDelta(t, 1.92, m.Position.PnLIfUpWins, 1e-9)
	assert.InDelta(t, 1.92, m.Position.PnLIfDownWins, 1e-9)
	assert.Greater(t, m.SecondsToClose, 0.0)
}

func TestServer_GetMarketNotFound(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/v1/markets/0xnope", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/v1/markets/0xnope/trades", nil).Code)
}

func TestServer_GetTrades(t *testing.T) {
	env := newTestEnv(t)

	var trades []map[string]any
	w := env.get(t, "/api/v1/markets/0xopen/trades", &trades)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, trades, 2)
	assert.Equal(t, "Up", trades[0]["side"])
	assert.Equal(t, "Down", trades[1]["side"])
}

func TestServer_ListSettlements(t *testing.T) {
	env := newTestEnv(t)

	var body struct {
		Settlements []struct {
			MarketID string  `json:"market_id"`
			Winner   string  `json:"winner"`
			PnL      float64 `json:"pnl"`
		} `json:"settlements"`
		TotalPnL float64 `json:"total_pnl"`
	}
	w := env.get(t, "/api/v1/settlements", &body)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body.Settlements, 1)
	assert.Equal(t, "0xdone", body.Settlements[0].MarketID)
	assert.Equal(t, "Up", body.Settlements[0].Winner)
	assert.InDelta(t, 6, body.Settlements[0].PnL, 1e-9)
	assert.InDelta(t, 6, body.TotalPnL, 1e-9)
}
