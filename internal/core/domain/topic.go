package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/solvahq/realtime-gateway/internal/core/errors"
)

// TopicFamily identifies one of the three multicast scopes.
type TopicFamily string

const (
	TopicFamilyTenant       TopicFamily = "tenant"
	TopicFamilyConversation TopicFamily = "conversation"
	TopicFamilyTicket       TopicFamily = "ticket"
)

// Topic is a multicast scope key of the form "{family}:{id}".
// It has no identity beyond its key; the registry garbage-collects
// topics whose member set becomes empty.
type Topic string

// NewTopic builds a topic key from a family and an entity id.
func NewTopic(family TopicFamily, id string) Topic {
	return Topic(string(family) + ":" + id)
}

// TenantTopic is the room shared by all staff of one tenant.
func TenantTopic(tenantID string) Topic {
	return NewTopic(TopicFamilyTenant, tenantID)
}

// ConversationTopic is the room for participants of one conversation thread.
func ConversationTopic(conversationID string) Topic {
	return NewTopic(TopicFamilyConversation, conversationID)
}

// TicketTopic is the room for participants of one ticket.
func TicketTopic(ticketID string) Topic {
	return NewTopic(TopicFamilyTicket, ticketID)
}

// ParseTopic validates a client-supplied topic string.
func ParseTopic(s string) (Topic, error) {
	family, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidTopic, s)
	}

	switch TopicFamily(family) {
	case TopicFamilyTenant, TopicFamilyConversation, TopicFamilyTicket:
		return Topic(s), nil
	default:
		return "", fmt.Errorf("%w: unknown family %q", apperrors.ErrInvalidTopic, family)
	}
}

// Family returns the topic's family prefix.
func (t Topic) Family() TopicFamily {
	family, _, _ := strings.Cut(string(t), ":")
	return TopicFamily(family)
}

// ID returns the entity id portion of the topic key.
func (t Topic) ID() string {
	_, id, _ := strings.Cut(string(t), ":")
	return id
}

func (t Topic) String() string {
	return string(t)
}
