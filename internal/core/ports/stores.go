package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/solvahq/realtime-gateway/internal/core/domain"
)

// SessionStore defines the port for the external per-conversation session
// context store. Keys carry a TTL; the store provides atomic per-key
// operations but no cross-key transactions, so merging is the caller's job.
type SessionStore interface {
	// Get returns the current snapshot, or (nil, nil) when no snapshot
	// exists or it has expired. Absence is not an error.
	Get(ctx context.Context, tenantID uuid.UUID, conversationID string) (*domain.SessionSnapshot, error)

	// Put writes the snapshot and renews its TTL.
	Put(ctx context.Context, snapshot *domain.SessionSnapshot, ttl time.Duration) error

	// Delete removes the snapshot, if present.
	Delete(ctx context.Context, tenantID uuid.UUID, conversationID string) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
