package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"Kavach/internal/domain/models"
	"Kavach/internal/service/metrics"
	"Kavach/internal/service/ratelimit"
	"Kavach/internal/usecase"
	xhttp "Kavach/pkg/http"
	xlogger "Kavach/pkg/logger"
	"Kavach/pkg/queue"
	"Kavach/pkg/util"

	"github.com/labstack/echo/v4"
)

var _ xhttp.Handler = (*RiskHandler)(nil)

// RiskHandler exposes prices, regime detection and portfolio operations.
type RiskHandler struct {
	logger     *xlogger.Logger
	prices     *usecase.PriceUseCase
	regime     *usecase.RegimeUseCase
	portfolios *usecase.PortfolioService
	hub        *DecisionHub
	rl         *ratelimit.Limiter
	jobs       queue.Enqueuer
}

// HandlerOption configures RiskHandler.
type HandlerOption func(*RiskHandler)

// WithDecisionHub mounts the websocket stream at /ws/decisions.
func WithDecisionHub(hub *DecisionHub) HandlerOption {
	return func(h *RiskHandler) { h.hub = hub }
}

// WithRequestLimiter limits detection endpoints per client IP.
func WithRequestLimiter(l *ratelimit.Limiter) HandlerOption {
	return func(h *RiskHandler) { h.rl = l }
}

// WithJobQueue enables ?async=true on evaluate.
func WithJobQueue(q queue.Enqueuer) HandlerOption {
	return func(h *RiskHandler) { h.jobs = q }
}

func NewRiskHandler(
	logger *xlogger.Logger,
	prices *usecase.PriceUseCase,
	regime *usecase.RegimeUseCase,
	portfolios *usecase.PortfolioService,
	opts ...HandlerOption,
) *RiskHandler {
	metrics.Register()
	h := &RiskHandler{logger: logger, prices: prices, regime: regime, portfolios: portfolios}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *RiskHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/prices", h.Prices)
	g.GET("/regime", h.Regime, h.limited("regime"))
	g.GET("/regime/history", h.RegimeHistory)

	p := g.Group("/portfolios")
	p.POST("", h.CreatePortfolio)
	p.GET("/:id", h.GetPortfolio)
	p.POST("/:id/deploy", h.Deploy)
	p.POST("/:id/rebalance", h.Rebalance)
	p.POST("/:id/evaluate", h.Evaluate, h.limited("evaluate"))
	p.GET("/:id/history", h.History)

	if h.hub != nil {
		e.GET("/ws/decisions", h.hub.Serve)
	}
}

func (h *RiskHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (h *RiskHandler) Prices(c echo.Context) error {
	defer observe("prices", time.Now())
	req := &models.PricesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res := h.prices.FetchLatestPrices(c.Request().Context(), util.ParseTickers(req.Tickers))
	return xhttp.SuccessResponse(c, res)
}

func (h *RiskHandler) Regime(c echo.Context) error {
	defer observe("regime", time.Now())
	req := &models.RegimeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	a := h.regime.Detect(c.Request().Context(), normTicker(req.Risky), normTicker(req.Safe))
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, a)
}

func (h *RiskHandler) RegimeHistory(c echo.Context) error {
	req := &models.RegimeHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.regime.Recent(c.Request().Context(), req.Limit)
	if err != nil {
		return h.fail(c, "regime_history", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *RiskHandler) CreatePortfolio(c echo.Context) error {
	req := &models.CreatePortfolioRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := h.portfolios.Create(c.Request().Context(), req.ID, req.Balance)
	if err != nil {
		return h.fail(c, "create_portfolio", err)
	}
	return xhttp.CreatedResponse(c, p)
}

func (h *RiskHandler) GetPortfolio(c echo.Context) error {
	req := &models.PortfolioIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := h.portfolios.Get(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "get_portfolio", err)
	}
	return xhttp.SuccessResponse(c, p)
}

func (h *RiskHandler) Deploy(c echo.Context) error {
	defer observe("deploy", time.Now())
	req := &models.DeployRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	out, err := h.portfolios.Deploy(c.Request().Context(), req.ID, models.Regime(req.Regime))
	if err != nil {
		return h.fail(c, "deploy", err)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *RiskHandler) Rebalance(c echo.Context) error {
	defer observe("rebalance", time.Now())
	req := &models.RebalanceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	out, err := h.portfolios.Rebalance(c.Request().Context(), req.ID, models.Regime(req.Regime))
	if err != nil {
		return h.fail(c, "rebalance", err)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *RiskHandler) Evaluate(c echo.Context) error {
	defer observe("evaluate", time.Now())
	req := &models.PortfolioIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if c.QueryParam("async") == "true" && h.jobs != nil {
		if _, err := h.portfolios.Get(c.Request().Context(), req.ID); err != nil {
			return h.fail(c, "evaluate", err)
		}
		payload := usecase.EvaluatePayload{PortfolioID: req.ID}
		if err := h.jobs.Enqueue(c.Request().Context(), usecase.JobEvaluatePortfolio, payload); err != nil {
			return h.fail(c, "evaluate", err)
		}
		return xhttp.DataResponse(c, http.StatusAccepted, payload)
	}
	res, err := h.portfolios.Evaluate(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "evaluate", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *RiskHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.portfolios.History(c.Request().Context(), req.ID, req.Limit)
	if err != nil {
		return h.fail(c, "history", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// limited rejects clients over the per-IP budget with 429.
func (h *RiskHandler) limited(endpoint string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if h.rl != nil && !h.rl.Allow(c.RealIP()+":"+endpoint) {
				h.logger.Warn("rate limited", xlogger.String("endpoint", endpoint), xlogger.String("remote", c.RealIP()))
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
			}
			return next(c)
		}
	}
}

func (h *RiskHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= 500 {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error(endpoint+" failed", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps domain errors onto HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var exhausted *models.ExhaustedError
	switch {
	case errors.Is(err, models.ErrPortfolioNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrPortfolioExists),
		errors.Is(err, models.ErrAlreadyDeployed),
		errors.Is(err, models.ErrNotDeployed),
		errors.Is(err, models.ErrPortfolioBusy):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrNoCapital):
		return xhttp.UnprocessableError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrHistoryUnavailable), errors.As(err, &exhausted):
		return xhttp.UnavailableError(err.Error()).WithError(err)
	}
	return xhttp.InternalError("internal error").WithError(err)
}

func observe(endpoint string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func normTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
