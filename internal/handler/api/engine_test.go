package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeMind/internal/domain/models"
	"TradeMind/internal/service/ratelimit"
	xhttp "TradeMind/pkg/http"
)

type stubEngine struct {
	last      map[string]models.TradeDecision
	saveErr   error
	saves     int
	retrained int
}

func (s *stubEngine) LastDecision(symbol string) (models.TradeDecision, bool) {
	d, ok := s.last[symbol]
	return d, ok
}

func (s *stubEngine) TimeframeStates(symbol string, tracked []models.Timeframe) ([]models.TimeframeState, models.CrossTimeframeAnalysis) {
	return []models.TimeframeState{{Timeframe: tracked[0], Trend: models.TrendUp, BarCount: 30}},
		models.CrossTimeframeAnalysis{Symbol: symbol, Reason: "insufficient_timeframes"}
}

func (s *stubEngine) Stats() models.EngineStats {
	return models.EngineStats{TotalTrades: 3, WinningTrades: 2, SortinoUnbounded: true}
}

func (s *stubEngine) Performance() map[string]models.SymbolPerformance {
	return map[string]models.SymbolPerformance{
		"MSFT": {Trades: 1},
		"AAPL": {Trades: 4, Wins: 3},
	}
}

func (s *stubEngine) Symbols() []string { return []string{"AAPL", "MSFT"} }

func (s *stubEngine) HasSufficientData(symbol string, minBars int) bool {
	return symbol == "AAPL" && minBars <= 30
}

func (s *stubEngine) SaveState(context.Context) error {
	s.saves++
	return s.saveErr
}

func (s *stubEngine) RequestRetrain() bool {
	s.retrained++
	return s.retrained == 1
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newAPI(eng *stubEngine, limiter *ratelimit.Limiter) http.Handler {
	h := NewEngineHandler(eng, nil, []models.Timeframe{models.TF1m, models.TF5m}, 20, limiter, nil)
	return xhttp.NewServer(h, xhttp.WithMetricsPath("")).Echo()
}

func do(t *testing.T, h http.Handler, method, target string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestLastDecision(t *testing.T) {
	eng := &stubEngine{last: map[string]models.TradeDecision{
		"AAPL": {Symbol: "AAPL", Timestamp: time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC), Action: models.ActionBuy, Reason: models.ReasonTrade},
	}}
	h := newAPI(eng, nil)

	code, env := do(t, h, http.MethodGet, "/api/decision/last?symbol=AAPL")
	require.Equal(t, http.StatusOK, code)
	var d models.TradeDecision
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.Equal(t, models.ActionBuy, d.Action)

	code, env = do(t, h, http.MethodGet, "/api/decision/last?symbol=MSFT")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, http.StatusNotFound, env.Status)

	code, env = do(t, h, http.MethodGet, "/api/decision/last")
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Rows  []models.TradeDecision `json:"rows"`
		Total int64                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(1), list.Total)
}

func TestTimeframesRequiresSymbol(t *testing.T) {
	h := newAPI(&stubEngine{}, nil)

	code, _ := do(t, h, http.MethodGet, "/api/timeframes")
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := do(t, h, http.MethodGet, "/api/timeframes?symbol=AAPL")
	require.Equal(t, http.StatusOK, code)
	var out timeframesResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Len(t, out.States, 1)
	assert.Equal(t, models.TF1m, out.States[0].Timeframe)
	assert.False(t, out.Cross.Available)
	assert.True(t, out.SufficientData)
}

func TestStatsAndPerformance(t *testing.T) {
	h := newAPI(&stubEngine{}, nil)

	_, env := do(t, h, http.MethodGet, "/api/stats")
	var st models.EngineStats
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, 3, st.TotalTrades)
	assert.True(t, st.SortinoUnbounded)

	_, env = do(t, h, http.MethodGet, "/api/performance")
	var list struct {
		Rows []symbolPerformance `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Rows, 2)
	assert.Equal(t, "AAPL", list.Rows[0].Symbol)
	assert.InDelta(t, 0.75, list.Rows[0].WinRate, 1e-12)
}

func TestDecisionHistoryWithoutStore(t *testing.T) {
	code, _ := do(t, newAPI(&stubEngine{}, nil), http.MethodGet, "/api/decisions?symbol=AAPL")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestOperatorEndpointsAreRateLimited(t *testing.T) {
	eng := &stubEngine{}
	h := newAPI(eng, ratelimit.New(0, 2))

	code, _ := do(t, h, http.MethodPost, "/api/checkpoint")
	assert.Equal(t, http.StatusOK, code)
	code, env := do(t, h, http.MethodPost, "/api/retrain")
	assert.Equal(t, http.StatusAccepted, code)
	assert.JSONEq(t, `{"queued":true}`, string(env.Data))

	code, _ = do(t, h, http.MethodPost, "/api/retrain")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, 1, eng.saves)
	assert.Equal(t, 1, eng.retrained)
}

func TestCheckpointFailure(t *testing.T) {
	eng := &stubEngine{saveErr: errors.New("disk full")}
	code, _ := do(t, newAPI(eng, nil), http.MethodPost, "/api/checkpoint")
	assert.Equal(t, http.StatusInternalServerError, code)
}
