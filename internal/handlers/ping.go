package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/lexdesk/internal/healthcheck"
)

type PingHandler struct {
	checkers []healthcheck.Checker
	logger   *slog.Logger
}

func NewPingHandler(log *slog.Logger, checkers []healthcheck.Checker) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PingHandler{checkers: checkers, logger: log.With(slog.String("handler", "ping"))}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
	e.GET("/health/ready", h.Ready)
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// Ready reports 503 when any dependency check fails.
func (h *PingHandler) Ready(c echo.Context) error {
	results, healthy := healthcheck.RunAll(c.Request().Context(), h.checkers, 2*time.Second)
	status := http.StatusOK
	overall := healthcheck.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = healthcheck.StatusError
		h.logger.Warn("readiness check failed", slog.Any("checks", results))
	}
	return c.JSON(status, map[string]any{
		"status": overall,
		"checks": results,
	})
}
