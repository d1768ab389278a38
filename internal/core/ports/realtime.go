package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/solvahq/realtime-gateway/internal/core/domain"
)

// Subscriber is one live connection as seen by the dispatch path: an
// opaque process-unique id, the authenticated identity behind it, and a
// best-effort delivery primitive.
type Subscriber interface {
	// ID is the process-unique connection identifier.
	ID() uuid.UUID

	// Identity is the validated identity the connection authenticated as.
	Identity() domain.Identity

	// Deliver queues one envelope for the connection. It never blocks;
	// a full or closed connection returns ErrDeliveryFailed.
	Deliver(env domain.Envelope) error
}

// TopicRegistry maintains the authoritative topic to member-set mapping.
// Join and leave are idempotent; a topic whose member set empties is
// removed entirely.
type TopicRegistry interface {
	Join(topic domain.Topic, sub Subscriber)
	Leave(topic domain.Topic, connID uuid.UUID)

	// MembersOf returns a point-in-time copy of the topic's members.
	// The copy may race with a concurrent join but is never torn.
	MembersOf(topic domain.Topic) []Subscriber

	TopicCount() int
}

// Dispatcher translates one domain event into topic broadcasts.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *domain.Event) (domain.DispatchResult, error)
}

// WatermarkRecorder records per-conversation last-inbound/last-outbound
// watermarks without clobbering the other half of the snapshot.
type WatermarkRecorder interface {
	RecordInbound(ctx context.Context, tenantID uuid.UUID, conversationID, messageID, channel string) error
	RecordOutbound(ctx context.Context, tenantID uuid.UUID, conversationID, messageID, channel string) error
	Get(ctx context.Context, tenantID uuid.UUID, conversationID string) (*domain.SessionSnapshot, error)
}
