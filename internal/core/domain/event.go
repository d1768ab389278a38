package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	apperrors "github.com/solvahq/realtime-gateway/internal/core/errors"
)

// EventKind tags a domain event produced by the rest of the platform.
type EventKind string

const (
	EventMessageCreated  EventKind = "message.created"
	EventMessageReaction EventKind = "message.reaction"

	EventConversationCreated EventKind = "conversation.created"
	EventConversationUpdated EventKind = "conversation.updated"
	EventConversationDeleted EventKind = "conversation.deleted"

	EventTicketUpdated        EventKind = "ticket.updated"
	EventTicketAssigned       EventKind = "ticket.assigned"
	EventTicketAutoAssigned   EventKind = "ticket.auto_assigned"
	EventTicketResolved       EventKind = "ticket.resolved"
	EventTicketReopened       EventKind = "ticket.reopened"
	EventTicketNoteAdded      EventKind = "ticket.note_added"
	EventTicketWatcherAdded   EventKind = "ticket.watcher_added"
	EventTicketWatcherRemoved EventKind = "ticket.watcher_removed"
	EventTicketTyping         EventKind = "ticket.typing"

	EventNotificationCreated       EventKind = "notification.created"
	EventNotificationUpdated       EventKind = "notification.updated"
	EventNotificationDeleted       EventKind = "notification.deleted"
	EventNotificationMarkedRead    EventKind = "notification.marked_read"
	EventNotificationMarkedAllRead EventKind = "notification.marked_all_read"
)

// Event is an immutable, tagged payload produced by upstream services.
// The payload is relayed verbatim to subscribers; the gateway only reads
// the routing fields.
type Event struct {
	Kind           EventKind       `json:"kind"`
	TenantID       uuid.UUID       `json:"tenantId"`
	ConversationID string          `json:"conversationId,omitempty"`
	TicketID       string          `json:"ticketId,omitempty"`
	Payload        json.RawMessage `json:"payload"`
}

// Envelope is the wire shape pushed to subscribers: the event kind as the
// wire event name plus the untouched payload.
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Envelope converts the event into its delivered wire shape.
func (e *Event) Envelope() Envelope {
	return Envelope{Kind: string(e.Kind), Payload: e.Payload}
}

// Topics resolves the multicast scopes for this event. The routing table
// is a closed set: an unknown kind or a kind missing its routing id is an
// unroutable event, never a partial route.
func (e *Event) Topics() ([]Topic, error) {
	if e.TenantID == uuid.Nil {
		return nil, fmt.Errorf("%w: event %q has no tenant", apperrors.ErrUnroutableEvent, e.Kind)
	}

	tenant := TenantTopic(e.TenantID.String())

	switch e.Kind {
	case EventMessageCreated, EventMessageReaction,
		EventConversationCreated, EventConversationUpdated, EventConversationDeleted:
		if e.ConversationID == "" {
			return nil, fmt.Errorf("%w: event %q has no conversation id", apperrors.ErrUnroutableEvent, e.Kind)
		}
		return []Topic{tenant, ConversationTopic(e.ConversationID)}, nil

	case EventTicketUpdated, EventTicketAssigned, EventTicketAutoAssigned,
		EventTicketResolved, EventTicketReopened, EventTicketNoteAdded,
		EventTicketWatcherAdded, EventTicketWatcherRemoved:
		if e.TicketID == "" {
			return nil, fmt.Errorf("%w: event %q has no ticket id", apperrors.ErrUnroutableEvent, e.Kind)
		}
		return []Topic{tenant, TicketTopic(e.TicketID)}, nil

	case EventTicketTyping:
		// Typing is ephemeral and stays inside the entity room; it never
		// fans out tenant-wide. It may target a ticket or a conversation.
		if e.TicketID != "" {
			return []Topic{TicketTopic(e.TicketID)}, nil
		}
		if e.ConversationID != "" {
			return []Topic{ConversationTopic(e.ConversationID)}, nil
		}
		return nil, fmt.Errorf("%w: event %q has no ticket or conversation id", apperrors.ErrUnroutableEvent, e.Kind)

	case EventNotificationCreated, EventNotificationUpdated, EventNotificationDeleted,
		EventNotificationMarkedRead, EventNotificationMarkedAllRead:
		return []Topic{tenant}, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", apperrors.ErrUnroutableEvent, e.Kind)
	}
}
