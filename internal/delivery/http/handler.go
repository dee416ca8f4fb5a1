package http

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vogiaan1904/clinic-queueboard/internal/display"
	queueErrors "github.com/vogiaan1904/clinic-queueboard/internal/errors"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/internal/service"
	pkgErrors "github.com/vogiaan1904/clinic-queueboard/pkg/errors"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
	"github.com/vogiaan1904/clinic-queueboard/pkg/response"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const boardReadTimeout = 2 * time.Second

type HTTPHandler struct {
	boardSvc  service.BoardService
	presenter *display.Presenter
	logger    logger.Logger
}

func NewHTTPHandler(boardSvc service.BoardService, presenter *display.Presenter, logger logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		boardSvc:  boardSvc,
		presenter: presenter,
		logger:    logger,
	}
}

// Routes mounts the board endpoints behind request logging and tracing.
func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(logger.HTTPLogger(h.logger))

	r.Get("/healthz", h.HealthCheck)
	r.Get("/api/board", h.GetView)
	r.Get("/api/board/state", h.GetBoardState)
	r.Method(http.MethodGet, "/metrics", expvar.Handler())

	return otelhttp.NewHandler(r, "queueboard.http")
}

// HealthCheck reports liveness together with the push channel state.
// Polling keeps the board alive without push, so a closed channel is degraded, not down.
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	conn := h.boardSvc.Connection()
	status := "healthy"
	if conn.State != models.ChannelOpen {
		status = "degraded"
	}

	h.respond(r.Context(), w, http.StatusOK, map[string]any{
		"status":     status,
		"service":    "queueboard",
		"topic":      h.boardSvc.Topic(),
		"connection": conn,
	})
}

// GetView returns the render-ready board.
func (h *HTTPHandler) GetView(w http.ResponseWriter, r *http.Request) {
	h.respond(r.Context(), w, http.StatusOK, h.presenter.View())
}

// GetBoardState returns the reducer's board as stored in the cache.
func (h *HTTPHandler) GetBoardState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), boardReadTimeout)
	defer cancel()

	b, err := h.boardSvc.Board(ctx)
	if err != nil {
		h.respondError(r.Context(), w, mapHTTPError(err))
		return
	}

	if err := response.OK(w, b); err != nil {
		h.logger.Errorf(r.Context(), "http.HTTPHandler.GetBoardState: %v", err)
	}
}

func mapHTTPError(err error) error {
	switch {
	case err == service.ErrBoardNotStarted:
		return pkgErrors.ErrBoardNotReady
	case err == queueErrors.ErrManagerDisposed:
		return pkgErrors.ErrBoardDisposed
	case errors.Is(err, context.DeadlineExceeded):
		return pkgErrors.ErrRequestTimedOut
	default:
		return err
	}
}

func (h *HTTPHandler) respond(ctx context.Context, w http.ResponseWriter, statusCode int, data any) {
	if err := response.JSON(w, statusCode, data); err != nil {
		h.logger.Errorf(ctx, "http.HTTPHandler.respond: failed to encode response: %v", err)
	}
}

func (h *HTTPHandler) respondError(ctx context.Context, w http.ResponseWriter, err error) {
	h.logger.Debugf(ctx, "http.HTTPHandler.respondError: %v", err)
	if err := response.Error(w, err); err != nil {
		h.logger.Errorf(ctx, "http.HTTPHandler.respondError: failed to encode response: %v", err)
	}
}
