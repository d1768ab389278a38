package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/solvahq/realtime-gateway/internal/adapters/primary/validation"
	apperrors "github.com/solvahq/realtime-gateway/internal/core/errors"
	"github.com/solvahq/realtime-gateway/internal/core/ports"
	"github.com/solvahq/realtime-gateway/internal/infrastructure/logging"
)

// SessionHandler exposes the per-conversation watermark API to upstream
// message-handling code.
type SessionHandler struct {
	recorder     ports.WatermarkRecorder
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(recorder ports.WatermarkRecorder, errorHandler *ErrorHandler, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		recorder:     recorder,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// RegisterRoutes registers the watermark and session routes
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/tenants/{tenantID}/conversations/{conversationID}", func(r chi.Router) {
		r.Post("/watermarks/{direction}", h.HandleRecordWatermark)
		r.Get("/session", h.HandleGetSession)
	})
}

// watermarkRequest is the body for recording a watermark
type watermarkRequest struct {
	MessageID string `json:"messageId"`
	Channel   string `json:"channel,omitempty"`
}

func (r *watermarkRequest) Validate(direction string) error {
	v := validation.NewValidator()

	v.Required("messageId", r.MessageID).
		MaxLength("messageId", r.MessageID, 256).
		MaxLength("channel", r.Channel, 64).
		OneOf("direction", direction, []string{"inbound", "outbound"})

	if v.HasErrors() {
		return v.Errors()
	}
	return nil
}

// HandleRecordWatermark records an inbound or outbound watermark for a
// conversation. A session store outage fails soft: the write is logged
// and dropped, and the producer's message-handling path carries on.
func (h *SessionHandler) HandleRecordWatermark(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid tenant id"))
		return
	}

	conversationID := chi.URLParam(r, "conversationID")
	direction := chi.URLParam(r, "direction")

	req, err := validation.DecodeAndValidate[watermarkRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := req.Validate(direction); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	if direction == "inbound" {
		err = h.recorder.RecordInbound(r.Context(), tenantID, conversationID, req.MessageID, req.Channel)
	} else {
		err = h.recorder.RecordOutbound(r.Context(), tenantID, conversationID, req.MessageID, req.Channel)
	}

	if err != nil {
		if errors.Is(err, apperrors.ErrSessionStoreUnavailable) {
			logger := logging.LoggerFromContext(r.Context(), h.logger)
			logger.Warn("watermark dropped, session store unavailable",
				"tenant_id", tenantID,
				"conversation_id", conversationID,
				"direction", direction,
			)
			WriteAccepted(w, map[string]bool{"recorded": false})
			return
		}
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteNoContent(w)
}

// HandleGetSession returns the merged snapshot for a conversation, or
// 404 when none exists or it has expired.
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid tenant id"))
		return
	}

	conversationID := chi.URLParam(r, "conversationID")

	snap, err := h.recorder.Get(r.Context(), tenantID, conversationID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if snap == nil {
		h.errorHandler.Handle(w, r, apperrors.NewNotFoundError(apperrors.ErrNotFound, "No session context for this conversation"))
		return
	}

	WriteJSON(w, http.StatusOK, snap)
}
