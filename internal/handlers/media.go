package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/memohai/lexdesk/internal/auth"
	"github.com/memohai/lexdesk/internal/media"
	"github.com/memohai/lexdesk/internal/storage"
)

// MediaHandler serves objects behind short-lived signed URLs.
type MediaHandler struct {
	store  storage.Store
	secret string
	logger *slog.Logger
}

func NewMediaHandler(log *slog.Logger, store storage.Store, secret string) *MediaHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MediaHandler{store: store, secret: secret, logger: log.With(slog.String("handler", "media"))}
}

func (h *MediaHandler) Register(e *echo.Echo) {
	e.GET("/media/:token", h.Get)
}

func (h *MediaHandler) Get(c echo.Context) error {
	tok, err := auth.ParseMediaToken(c.Param("token"), h.secret)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired media token")
	}
	loc := media.StorageLocation{Bucket: tok.Bucket, ObjectKey: tok.ObjectKey}
	ctx := c.Request().Context()

	info, err := h.store.Stat(ctx, loc)
	if err != nil {
		return h.storeError(err)
	}
	reader, err := h.store.Open(ctx, loc)
	if err != nil {
		return h.storeError(err)
	}
	defer reader.Close()

	res := c.Response()
	res.Header().Set("Cache-Control", "private, no-store")
	if info.Size > 0 {
		res.Header().Set(echo.HeaderContentLength, strconv.FormatInt(info.Size, 10))
	}
	contentType := tok.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Stream(http.StatusOK, contentType, reader)
}

func (h *MediaHandler) storeError(err error) error {
	switch {
	case errors.Is(err, media.ErrObjectNotFound), errors.Is(err, media.ErrPathTraversal):
		return echo.NewHTTPError(http.StatusNotFound, "media not found")
	default:
		h.logger.Error("media read failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, "media unavailable")
	}
}
