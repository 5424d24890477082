package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/memohai/lexdesk/internal/ingress"
	"github.com/memohai/lexdesk/internal/workflow"
)

// Dispatcher accepts a message for background processing.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg workflow.InboundMessage) ingress.Ticket
}

type InboundHandler struct {
	dispatcher Dispatcher
	validate   *validator.Validate
	logger     *slog.Logger
}

type inboundResponse struct {
	Accepted      bool   `json:"accepted"`
	Duplicate     bool   `json:"duplicate"`
	CorrelationID string `json:"correlation_id"`
}

func NewInboundHandler(log *slog.Logger, dispatcher Dispatcher) *InboundHandler {
	if log == nil {
		log = slog.Default()
	}
	return &InboundHandler{
		dispatcher: dispatcher,
		validate:   validator.New(),
		logger:     log.With(slog.String("handler", "inbound")),
	}
}

func (h *InboundHandler) Register(e *echo.Echo) {
	e.POST("/inbound", h.Receive)
}

// Receive accepts one inbound chat event and answers before the workflow runs.
func (h *InboundHandler) Receive(c echo.Context) error {
	var req workflow.InboundMessage
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.ThreadID = strings.TrimSpace(req.ThreadID)
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validationMessage(err))
	}
	if header := strings.TrimSpace(c.Request().Header.Get("Idempotency-Key")); header != "" && req.CorrelationID == "" {
		req.CorrelationID = header
	}

	ticket := h.dispatcher.Dispatch(c.Request().Context(), req)
	return c.JSON(http.StatusAccepted, inboundResponse{
		Accepted:      !ticket.Duplicate,
		Duplicate:     ticket.Duplicate,
		CorrelationID: ticket.CorrelationID,
	})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Namespace()+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}
