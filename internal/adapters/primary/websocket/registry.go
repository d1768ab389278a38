package websocket

import (
	"sync"

	"github.com/google/uuid"

	"github.com/solvahq/realtime-gateway/internal/core/domain"
	"github.com/solvahq/realtime-gateway/internal/core/ports"
)

// Registry maintains the authoritative topic to member-set mapping.
//
// The map is guarded by a single RWMutex, but the lock is only ever held
// for map mutation or a member-set copy, never while delivering: dispatch
// copies the member set under RLock and sends outside the lock, so fan-out
// latency is independent of join/leave churn.
type Registry struct {
	// mu protects topics
	mu sync.RWMutex

	// topics maps topic keys to subscribed connections by connection id
	topics map[domain.Topic]map[uuid.UUID]ports.Subscriber
}

// Ensure Registry implements the TopicRegistry port.
var _ ports.TopicRegistry = (*Registry)(nil)

// NewRegistry creates an empty topic registry.
func NewRegistry() *Registry {
	return &Registry{
		topics: make(map[domain.Topic]map[uuid.UUID]ports.Subscriber),
	}
}

// Join adds a subscriber to a topic's member set. Joining a topic the
// subscriber is already a member of is a no-op.
func (r *Registry) Join(topic domain.Topic, sub ports.Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.topics[topic]
	if !ok {
		members = make(map[uuid.UUID]ports.Subscriber)
		r.topics[topic] = members
	}
	members[sub.ID()] = sub
}

// Leave removes a subscriber from a topic's member set. Removing a
// non-member is a no-op. A topic whose member set empties is deleted so
// empty topics never accumulate over the life of the process.
func (r *Registry) Leave(topic domain.Topic, connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.topics[topic]
	if !ok {
		return
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(r.topics, topic)
	}
}

// MembersOf returns a point-in-time copy of the topic's members. The copy
// may race with a concurrent join or leave, but it is never torn.
func (r *Registry) MembersOf(topic domain.Topic) []ports.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.topics[topic]
	if !ok {
		return nil
	}

	subs := make([]ports.Subscriber, 0, len(members))
	for _, sub := range members {
		subs = append(subs, sub)
	}
	return subs
}

// TopicCount returns the number of topics with at least one member.
func (r *Registry) TopicCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

// MemberCount returns the number of subscribers in a topic.
func (r *Registry) MemberCount(topic domain.Topic) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}
