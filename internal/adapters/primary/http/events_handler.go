package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/solvahq/realtime-gateway/internal/adapters/primary/validation"
	"github.com/solvahq/realtime-gateway/internal/core/domain"
	"github.com/solvahq/realtime-gateway/internal/core/ports"
	"github.com/solvahq/realtime-gateway/internal/infrastructure/logging"
)

// EventsHandler is the ingress for upstream producers: ticket, message
// and notification services post their domain events here and the
// dispatcher fans them out to subscribed connections.
type EventsHandler struct {
	dispatcher   ports.Dispatcher
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(dispatcher ports.Dispatcher, errorHandler *ErrorHandler, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		dispatcher:   dispatcher,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// RegisterRoutes registers the producer event routes
func (h *EventsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/events", h.HandleDispatch)
}

// HandleDispatch accepts one domain event and dispatches it. Delivery is
// best effort and at-most-once: a 202 means the event was fanned out to
// whoever was subscribed at that instant, not that every client got it.
func (h *EventsHandler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	event, err := validation.DecodeAndValidate[domain.Event](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	v := validation.NewValidator()
	v.Required("kind", string(event.Kind)).
		Custom("tenantId", event.TenantID != uuid.Nil, "This field is required")
	if v.HasErrors() {
		h.errorHandler.Handle(w, r, v.Errors())
		return
	}

	ctx := logging.WithTenantID(r.Context(), event.TenantID.String())
	result, err := h.dispatcher.Dispatch(ctx, event)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteAccepted(w, result)
}
