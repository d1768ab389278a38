package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/solvahq/realtime-gateway/internal/core/domain"
	"github.com/solvahq/realtime-gateway/internal/core/ports"
)

// Dispatcher translates one domain event into topic broadcasts: resolve
// the topic set from the event kind, collect the member union, deliver
// the event's payload to each member once.
//
// Delivery is at-most-once and best effort: the dispatcher holds no
// queue, so an event that cannot be routed at the instant of dispatch is
// dropped with a typed error. Per-connection failures are contained; one
// broken connection never aborts delivery to the rest.
type Dispatcher struct {
	registry ports.TopicRegistry
	logger   *slog.Logger
}

var _ ports.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry ports.TopicRegistry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Dispatch resolves the event's topics and fans the envelope out to every
// member. A connection subscribed to more than one of the resolved topics
// receives exactly one delivery. Members of another tenant are skipped:
// topic keys for conversations and tickets carry no tenant, so the event's
// tenant is enforced here.
func (d *Dispatcher) Dispatch(ctx context.Context, event *domain.Event) (domain.DispatchResult, error) {
	topics, err := event.Topics()
	if err != nil {
		d.logger.WarnContext(ctx, "unroutable event dropped",
			"kind", string(event.Kind),
			"tenant_id", event.TenantID,
			"error", err,
		)
		return domain.DispatchResult{}, err
	}

	// Union of member sets across all resolved topics, deduplicated by
	// connection id.
	seen := make(map[uuid.UUID]bool)
	var targets []ports.Subscriber
	for _, topic := range topics {
		for _, sub := range d.registry.MembersOf(topic) {
			if seen[sub.ID()] {
				continue
			}
			seen[sub.ID()] = true

			if sub.Identity().TenantID != event.TenantID {
				continue
			}
			targets = append(targets, sub)
		}
	}

	env := event.Envelope()
	delivered := 0
	for _, sub := range targets {
		// Deliver only enqueues onto the connection's buffered channel;
		// the per-connection write deadline bounds each send on its own,
		// so a slow peer cannot stall the loop.
		if err := sub.Deliver(env); err != nil {
			d.logger.WarnContext(ctx, "delivery failed",
				"kind", string(event.Kind),
				"connection_id", sub.ID(),
				"error", err,
			)
			continue
		}
		delivered++
	}

	d.logger.DebugContext(ctx, "event dispatched",
		"kind", string(event.Kind),
		"tenant_id", event.TenantID,
		"topics", len(topics),
		"delivered", delivered,
	)

	return domain.DispatchResult{Targeted: topics, Delivered: delivered}, nil
}
