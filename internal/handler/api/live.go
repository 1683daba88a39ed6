package api

import (
	"github.com/labstack/echo/v4"

	"StockLive/internal/market"
	"StockLive/internal/session"
	xhttp "StockLive/pkg/http"
	xlogger "StockLive/pkg/logger"
)

// LiveHandler exposes the reconciled snapshot and session state over HTTP.
type LiveHandler struct {
	logger  *xlogger.Logger
	store   *market.Store
	session *session.Controller
}

func NewLiveHandler(logger *xlogger.Logger, store *market.Store, sc *session.Controller) *LiveHandler {
	return &LiveHandler{logger: logger, store: store, session: sc}
}

func (h *LiveHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/snapshot", h.Snapshot)
	g.GET("/snapshot/:ticker", h.Ticker)
	g.GET("/session", h.Session)
	g.POST("/connect", h.Connect)
	g.POST("/bootstrap", h.Bootstrap)
}

type healthResponse struct {
	Status string `json:"status"`
	Stream string `json:"stream"`
}

func (h *LiveHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, healthResponse{
		Status: "ok",
		Stream: h.store.State().String(),
	})
}

type snapshotResponse struct {
	Stream string                  `json:"stream"`
	Quotes map[string]market.Quote `json:"quotes"`
}

func (h *LiveHandler) Snapshot(c echo.Context) error {
	return xhttp.SuccessResponse(c, snapshotResponse{
		Stream: h.store.State().String(),
		Quotes: h.store.Snapshot(),
	})
}

func (h *LiveHandler) Ticker(c echo.Context) error {
	ticker := c.Param("ticker")
	q, ok := h.store.Lookup(ticker)
	if !ok {
		return xhttp.NotFoundResponse(c, "unknown ticker: "+ticker)
	}
	return xhttp.SuccessResponse(c, q)
}

type sessionResponse struct {
	Identity *session.Identity `json:"identity"`
	Loading  bool              `json:"loading"`
}

func (h *LiveHandler) Session(c echo.Context) error {
	return xhttp.SuccessResponse(c, sessionResponse{
		Identity: h.session.Identity(),
		Loading:  h.session.Loading(),
	})
}

// Connect is the external lifecycle signal that re-establishes the stream.
// Connecting while connected is a no-op by store contract.
func (h *LiveHandler) Connect(c echo.Context) error {
	if err := h.store.Connect(c.Request().Context()); err != nil {
		h.logger.Error("stream connect failed", xlogger.Error(err))
		return xhttp.ConflictResponse(c, err.Error())
	}
	return xhttp.SuccessResponse(c, map[string]string{"stream": h.store.State().String()})
}

// Bootstrap re-runs the cold-start session sequence; an overlapping call
// collapses into the running one.
func (h *LiveHandler) Bootstrap(c echo.Context) error {
	if err := h.session.Bootstrap(c.Request().Context()); err != nil {
		h.logger.Warn("bootstrap failed", xlogger.Error(err))
	}
	return xhttp.SuccessResponse(c, sessionResponse{
		Identity: h.session.Identity(),
		Loading:  h.session.Loading(),
	})
}
