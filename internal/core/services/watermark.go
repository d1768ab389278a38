package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/solvahq/realtime-gateway/internal/core/domain"
	"github.com/solvahq/realtime-gateway/internal/core/ports"
)

// WatermarkRecorder records per-conversation last-inbound/last-outbound
// watermarks over the session context store.
//
// Every write is read-merge-write: the current snapshot is fetched (an
// absent snapshot starts empty), one half is updated, and the result is
// written back with the TTL renewed. The store only guarantees atomic
// per-key operations, so two concurrent writers can lose one merge cycle;
// that last-writer-wins window is accepted.
type WatermarkRecorder struct {
	store  ports.SessionStore
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

var _ ports.WatermarkRecorder = (*WatermarkRecorder)(nil)

// NewWatermarkRecorder creates a recorder writing snapshots with the
// given TTL. TTLs below the configured floor are clamped up, never
// rejected; a zero TTL falls back to 24 hours.
func NewWatermarkRecorder(store ports.SessionStore, ttl time.Duration, logger *slog.Logger) *WatermarkRecorder {
	if ttl <= 0 {
		ttl = domain.SessionTTLDefault
	}
	if ttl < domain.SessionTTLFloor {
		ttl = domain.SessionTTLFloor
	}
	return &WatermarkRecorder{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With("component", "watermark_recorder"),
	}
}

// RecordInbound records the last inbound message for a conversation,
// preserving the outbound half of the snapshot.
func (r *WatermarkRecorder) RecordInbound(ctx context.Context, tenantID uuid.UUID, conversationID, messageID, channel string) error {
	return r.record(ctx, tenantID, conversationID, func(snap *domain.SessionSnapshot) {
		snap.MarkInbound(messageID, channel, r.now().UTC())
	})
}

// RecordOutbound records the last outbound message for a conversation,
// preserving the inbound half of the snapshot.
func (r *WatermarkRecorder) RecordOutbound(ctx context.Context, tenantID uuid.UUID, conversationID, messageID, channel string) error {
	return r.record(ctx, tenantID, conversationID, func(snap *domain.SessionSnapshot) {
		snap.MarkOutbound(messageID, channel, r.now().UTC())
	})
}

func (r *WatermarkRecorder) record(ctx context.Context, tenantID uuid.UUID, conversationID string, merge func(*domain.SessionSnapshot)) error {
	snap, err := r.store.Get(ctx, tenantID, conversationID)
	if err != nil {
		r.logger.Warn("watermark read failed",
			"tenant_id", tenantID,
			"conversation_id", conversationID,
			"error", err,
		)
		return err
	}
	if snap == nil {
		snap = domain.NewSessionSnapshot(tenantID, conversationID)
	}

	merge(snap)

	if err := r.store.Put(ctx, snap, r.ttl); err != nil {
		r.logger.Warn("watermark write failed",
			"tenant_id", tenantID,
			"conversation_id", conversationID,
			"error", err,
		)
		return err
	}
	return nil
}

// Get returns the current merged snapshot, or (nil, nil) if none exists
// or it has expired.
func (r *WatermarkRecorder) Get(ctx context.Context, tenantID uuid.UUID, conversationID string) (*domain.SessionSnapshot, error) {
	return r.store.Get(ctx, tenantID, conversationID)
}

// TTL returns the effective, clamped snapshot TTL.
func (r *WatermarkRecorder) TTL() time.Duration {
	return r.ttl
}
