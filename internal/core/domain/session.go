package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SessionTTLDefault is the snapshot lifetime when none is configured.
	SessionTTLDefault = 24 * time.Hour

	// SessionTTLFloor is the minimum enforced snapshot TTL. Requested
	// TTLs below the floor are clamped up, never rejected.
	SessionTTLFloor = 60 * time.Second
)

// SessionSnapshot is the merged inbound+outbound watermark record for one
// conversation, held in the session context store under a TTL.
//
// Writes to one half must never erase the other half: callers read the
// current snapshot, merge their half in, and write the result back.
type SessionSnapshot struct {
	TenantID       uuid.UUID `json:"tenantId"`
	ConversationID string    `json:"conversationId"`
	Channel        string    `json:"channel,omitempty"`

	LastInboundAt        *time.Time `json:"lastInboundAt,omitempty"`
	LastInboundMessageID string     `json:"lastInboundMessageId,omitempty"`

	LastOutboundAt        *time.Time `json:"lastOutboundAt,omitempty"`
	LastOutboundMessageID string     `json:"lastOutboundMessageId,omitempty"`
}

// NewSessionSnapshot returns an empty snapshot for a conversation.
func NewSessionSnapshot(tenantID uuid.UUID, conversationID string) *SessionSnapshot {
	return &SessionSnapshot{
		TenantID:       tenantID,
		ConversationID: conversationID,
	}
}

// MarkInbound records the last inbound message, leaving the outbound half
// untouched.
func (s *SessionSnapshot) MarkInbound(messageID, channel string, at time.Time) {
	s.LastInboundAt = &at
	s.LastInboundMessageID = messageID
	if channel != "" {
		s.Channel = channel
	}
}

// MarkOutbound records the last outbound message, leaving the inbound half
// untouched.
func (s *SessionSnapshot) MarkOutbound(messageID, channel string, at time.Time) {
	s.LastOutboundAt = &at
	s.LastOutboundMessageID = messageID
	if channel != "" {
		s.Channel = channel
	}
}
