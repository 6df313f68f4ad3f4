package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"TradeMind/internal/domain/models"
	drepo "TradeMind/internal/domain/repository"
	"TradeMind/internal/service/ratelimit"
	xhttp "TradeMind/pkg/http"
	"TradeMind/pkg/logger"
)

// Engine is the part of the decision engine the API reads and drives.
type Engine interface {
	LastDecision(symbol string) (models.TradeDecision, bool)
	TimeframeStates(symbol string, tracked []models.Timeframe) ([]models.TimeframeState, models.CrossTimeframeAnalysis)
	Stats() models.EngineStats
	Performance() map[string]models.SymbolPerformance
	Symbols() []string
	HasSufficientData(symbol string, minBars int) bool
	SaveState(ctx context.Context) error
	RequestRetrain() bool
}

// EngineHandler serves introspection endpoints and the two operator
// actions (checkpoint, retrain). Operator actions are rate limited per
// client IP.
type EngineHandler struct {
	engine    Engine
	decisions drepo.DecisionStore
	tracked   []models.Timeframe
	minBars   int
	limiter   *ratelimit.Limiter
	log       *logger.Logger
}

var _ xhttp.Handler = (*EngineHandler)(nil)

// NewEngineHandler builds the handler. decisions may be nil when no audit
// store is configured.
func NewEngineHandler(engine Engine, decisions drepo.DecisionStore, tracked []models.Timeframe, minBars int, limiter *ratelimit.Limiter, log *logger.Logger) *EngineHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &EngineHandler{
		engine:    engine,
		decisions: decisions,
		tracked:   tracked,
		minBars:   minBars,
		limiter:   limiter,
		log:       log.Named("api"),
	}
}

func (h *EngineHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/decision/last", h.LastDecision)
	g.GET("/decisions", h.DecisionHistory)
	g.GET("/timeframes", h.Timeframes)
	g.GET("/stats", h.Stats)
	g.GET("/performance", h.Performance)
	g.POST("/checkpoint", h.Checkpoint, h.operatorLimit)
	g.POST("/retrain", h.Retrain, h.operatorLimit)
	e.GET("/healthz", h.Health)
}

func (h *EngineHandler) operatorLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("operator rate limit exceeded"))
		}
		return next(c)
	}
}

// LastDecision returns the cached decision for one symbol, or for every
// symbol that has one when no symbol is given.
func (h *EngineHandler) LastDecision(c echo.Context) error {
	req := &models.SymbolQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Symbol != "" {
		d, ok := h.engine.LastDecision(req.Symbol)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no recent decision for %s", req.Symbol))
		}
		return xhttp.SuccessResponse(c, d)
	}

	out := make([]models.TradeDecision, 0)
	for _, s := range h.engine.Symbols() {
		if d, ok := h.engine.LastDecision(s); ok {
			out = append(out, d)
		}
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *EngineHandler) DecisionHistory(c echo.Context) error {
	req := &models.DecisionHistoryQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.decisions == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("decision audit store is not configured"))
	}
	rows, err := h.decisions.RecentDecisions(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		h.log.Error("decision history query failed", logger.String("symbol", req.Symbol), logger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("decision history unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

type timeframesResponse struct {
	Symbol         string                        `json:"symbol"`
	SufficientData bool                          `json:"sufficient_data"`
	States         []models.TimeframeState       `json:"states"`
	Cross          models.CrossTimeframeAnalysis `json:"cross"`
}

func (h *EngineHandler) Timeframes(c echo.Context) error {
	req := &models.TimeframesQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	states, cross := h.engine.TimeframeStates(req.Symbol, h.tracked)
	if states == nil {
		states = []models.TimeframeState{}
	}
	return xhttp.SuccessResponse(c, timeframesResponse{
		Symbol:         req.Symbol,
		SufficientData: h.engine.HasSufficientData(req.Symbol, h.minBars),
		States:         states,
		Cross:          cross,
	})
}

func (h *EngineHandler) Stats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Stats())
}

type symbolPerformance struct {
	Symbol string `json:"symbol"`
	models.SymbolPerformance
	WinRate float64 `json:"win_rate"`
}

// Performance lists per-symbol results sorted by symbol.
func (h *EngineHandler) Performance(c echo.Context) error {
	book := h.engine.Performance()
	out := make([]symbolPerformance, 0, len(book))
	for s, p := range book {
		out = append(out, symbolPerformance{Symbol: s, SymbolPerformance: p, WinRate: p.WinRate()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *EngineHandler) Checkpoint(c echo.Context) error {
	if err := h.engine.SaveState(c.Request().Context()); err != nil {
		h.log.Error("manual checkpoint failed", logger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("checkpoint failed").WithError(err))
	}
	h.log.Info("manual checkpoint saved")
	return xhttp.SuccessResponse(c, map[string]bool{"saved": true})
}

// Retrain queues a warmup replay. A request that arrives while one is
// already queued is acknowledged but not duplicated.
func (h *EngineHandler) Retrain(c echo.Context) error {
	queued := h.engine.RequestRetrain()
	h.log.Info("retrain requested", logger.Bool("queued", queued))
	return xhttp.AcceptedResponse(c, map[string]bool{"queued": queued})
}

func (h *EngineHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
