package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/solvahq/realtime-gateway/internal/core/domain"
	apperrors "github.com/solvahq/realtime-gateway/internal/core/errors"
	"github.com/solvahq/realtime-gateway/internal/core/ports"
)

// SessionStore keeps per-conversation session snapshots in Redis under a
// TTL. Keys are "sessctx:{tenantId}:{conversationId}"; values are the
// JSON snapshot. Redis provides atomic per-key operations only, so the
// read-merge-write cycle lives in the caller.
type SessionStore struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure SessionStore implements the SessionStore port.
var _ ports.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a session store over an existing Redis client.
func NewSessionStore(client *redis.Client, logger *slog.Logger) *SessionStore {
	return &SessionStore{
		client: client,
		logger: logger.With("component", "session_store"),
	}
}

func sessionKey(tenantID uuid.UUID, conversationID string) string {
	return fmt.Sprintf("sessctx:%s:%s", tenantID, conversationID)
}

// Get returns the snapshot for a conversation, or (nil, nil) when the key
// does not exist or has expired.
func (s *SessionStore) Get(ctx context.Context, tenantID uuid.UUID, conversationID string) (*domain.SessionSnapshot, error) {
	data, err := s.client.Get(ctx, sessionKey(tenantID, conversationID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get session: %v", apperrors.ErrSessionStoreUnavailable, err)
	}

	var snap domain.SessionSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		// A corrupt value is unrecoverable; treat it as absent so the
		// next write replaces it.
		s.logger.Warn("discarding corrupt session snapshot",
			"tenant_id", tenantID,
			"conversation_id", conversationID,
			"error", err,
		)
		return nil, nil
	}

	return &snap, nil
}

// Put writes the snapshot and renews its TTL.
func (s *SessionStore) Put(ctx context.Context, snapshot *domain.SessionSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal session snapshot: %w", err)
	}

	key := sessionKey(snapshot.TenantID, snapshot.ConversationID)
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: put session: %v", apperrors.ErrSessionStoreUnavailable, err)
	}
	return nil
}

// Delete removes the snapshot, if present.
func (s *SessionStore) Delete(ctx context.Context, tenantID uuid.UUID, conversationID string) error {
	if err := s.client.Del(ctx, sessionKey(tenantID, conversationID)).Err(); err != nil {
		return fmt.Errorf("%w: delete session: %v", apperrors.ErrSessionStoreUnavailable, err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
