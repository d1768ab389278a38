package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/solvahq/realtime-gateway/internal/core/domain"
	"github.com/solvahq/realtime-gateway/internal/core/ports"
)

// MockSessionStore is a mock implementation of ports.SessionStore
type MockSessionStore struct {
	mock.Mock
}

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{}
}

func (m *MockSessionStore) Get(ctx context.Context, tenantID uuid.UUID, conversationID string) (*domain.SessionSnapshot, error) {
	args := m.Called(ctx, tenantID, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SessionSnapshot), args.Error(1)
}

func (m *MockSessionStore) Put(ctx context.Context, snapshot *domain.SessionSnapshot, ttl time.Duration) error {
	args := m.Called(ctx, snapshot, ttl)
	return args.Error(0)
}

func (m *MockSessionStore) Delete(ctx context.Context, tenantID uuid.UUID, conversationID string) error {
	args := m.Called(ctx, tenantID, conversationID)
	return args.Error(0)
}

func (m *MockSessionStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockDispatcher is a mock implementation of ports.Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

func (m *MockDispatcher) Dispatch(ctx context.Context, event *domain.Event) (domain.DispatchResult, error) {
	args := m.Called(ctx, event)
	return args.Get(0).(domain.DispatchResult), args.Error(1)
}

// MockWatermarkRecorder is a mock implementation of ports.WatermarkRecorder
type MockWatermarkRecorder struct {
	mock.Mock
}

func NewMockWatermarkRecorder() *MockWatermarkRecorder {
	return &MockWatermarkRecorder{}
}

func (m *MockWatermarkRecorder) RecordInbound(ctx context.Context, tenantID uuid.UUID, conversationID, messageID, channel string) error {
	args := m.Called(ctx, tenantID, conversationID, messageID, channel)
	return args.Error(0)
}

func (m *MockWatermarkRecorder) RecordOutbound(ctx context.Context, tenantID uuid.UUID, conversationID, messageID, channel string) error {
	args := m.Called(ctx, tenantID, conversationID, messageID, channel)
	return args.Error(0)
}

func (m *MockWatermarkRecorder) Get(ctx context.Context, tenantID uuid.UUID, conversationID string) (*domain.SessionSnapshot, error) {
	args := m.Called(ctx, tenantID, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SessionSnapshot), args.Error(1)
}

// MockTopicRegistry is a mock implementation of ports.TopicRegistry
type MockTopicRegistry struct {
	mock.Mock
}

func NewMockTopicRegistry() *MockTopicRegistry {
	return &MockTopicRegistry{}
}

func (m *MockTopicRegistry) Join(topic domain.Topic, sub ports.Subscriber) {
	m.Called(topic, sub)
}

func (m *MockTopicRegistry) Leave(topic domain.Topic, connID uuid.UUID) {
	m.Called(topic, connID)
}

func (m *MockTopicRegistry) MembersOf(topic domain.Topic) []ports.Subscriber {
	args := m.Called(topic)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]ports.Subscriber)
}

func (m *MockTopicRegistry) TopicCount() int {
	args := m.Called()
	return args.Int(0)
}
