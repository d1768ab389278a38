package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvahq/realtime-gateway/internal/auth"
	"github.com/solvahq/realtime-gateway/internal/core/domain"
	apperrors "github.com/solvahq/realtime-gateway/internal/core/errors"
	"github.com/solvahq/realtime-gateway/internal/core/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T) (*Gateway, *auth.TokenManager) {
	t.Helper()
	logger := testLogger()
	registry := NewRegistry()
	tokens := auth.NewTokenManager("test-secret", time.Minute)
	dispatcher := services.NewDispatcher(registry, logger)
	gateway := NewGateway(registry, tokens, dispatcher, Options{
		SendBufferSize: 8,
		PingInterval:   time.Second,
		PongWait:       10 * time.Second,
		WriteWait:      time.Second,
	}, logger)
	return gateway, tokens
}

// offlineClient builds a client without a transport. Fine for everything
// except the pumps.
func offlineClient(g *Gateway, identity domain.Identity, ns Namespace) *Client {
	return newClient(g, nil, identity, ns, testLogger())
}

func agentIdentity(tenantID uuid.UUID) domain.Identity {
	return domain.Identity{UserID: uuid.New(), TenantID: tenantID, Role: domain.RoleAgent}
}

func TestNamespace_Allows(t *testing.T) {
	assert.True(t, NamespaceTickets.Allows(domain.TopicFamilyTenant))
	assert.True(t, NamespaceTickets.Allows(domain.TopicFamilyTicket))
	assert.False(t, NamespaceTickets.Allows(domain.TopicFamilyConversation))

	assert.True(t, NamespaceConversations.Allows(domain.TopicFamilyTenant))
	assert.True(t, NamespaceConversations.Allows(domain.TopicFamilyConversation))
	assert.False(t, NamespaceConversations.Allows(domain.TopicFamilyTicket))
}

func TestGateway_JoinRefusesTopicOutsideNamespace(t *testing.T) {
	gateway, _ := newTestGateway(t)
	client := offlineClient(gateway, agentIdentity(uuid.New()), NamespaceTickets)

	err := gateway.Join(client, domain.ConversationTopic("c1"))

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTopicForbidden)
	assert.Equal(t, 0, gateway.TopicCount())
	assert.Empty(t, client.Topics())
}

func TestGateway_JoinRefusesForeignTenantRoom(t *testing.T) {
	gateway, _ := newTestGateway(t)
	client := offlineClient(gateway, agentIdentity(uuid.New()), NamespaceTickets)

	err := gateway.Join(client, domain.TenantTopic(uuid.NewString()))

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTopicForbidden)
	assert.Equal(t, 0, gateway.TopicCount())
}

func TestGateway_JoinRefusesTenantRoomForCustomers(t *testing.T) {
	gateway, _ := newTestGateway(t)
	tenantID := uuid.New()
	identity := domain.Identity{UserID: uuid.New(), TenantID: tenantID, Role: domain.RoleCustomer}
	client := offlineClient(gateway, identity, NamespaceConversations)

	err := gateway.Join(client, domain.TenantTopic(tenantID.String()))

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTopicForbidden)

	// The same customer can still join an entity room.
	require.NoError(t, gateway.Join(client, domain.ConversationTopic("c1")))
}

func TestGateway_JoinAndLeaveAreIdempotent(t *testing.T) {
	gateway, _ := newTestGateway(t)
	tenantID := uuid.New()
	client := offlineClient(gateway, agentIdentity(tenantID), NamespaceTickets)
	topic := domain.TicketTopic("k1")

	require.NoError(t, gateway.Join(client, topic))
	require.NoError(t, gateway.Join(client, topic))
	assert.Equal(t, 1, gateway.TopicCount())
	assert.Equal(t, []domain.Topic{topic}, client.Topics())

	gateway.Leave(client, topic)
	gateway.Leave(client, topic)
	assert.Equal(t, 0, gateway.TopicCount())
	assert.Empty(t, client.Topics())
}

func TestGateway_DisconnectIsExactlyOnce(t *testing.T) {
	gateway, _ := newTestGateway(t)
	tenantID := uuid.New()
	client := offlineClient(gateway, agentIdentity(tenantID), NamespaceTickets)

	gateway.mu.Lock()
	gateway.conns[client.id] = client
	gateway.mu.Unlock()

	require.NoError(t, gateway.Join(client, domain.TenantTopic(tenantID.String())))
	require.NoError(t, gateway.Join(client, domain.TicketTopic("k1")))
	require.Equal(t, 2, gateway.TopicCount())

	gateway.Disconnect(client)

	assert.Equal(t, 0, gateway.TopicCount(), "all memberships must be torn down")
	assert.Equal(t, 0, gateway.ConnectionCount())
	assert.ErrorIs(t, client.Deliver(domain.Envelope{Kind: "x"}), apperrors.ErrDeliveryFailed)

	// A second disconnect must be a no-op, not a panic.
	gateway.Disconnect(client)
}

func TestClient_DeliverFailsWhenBufferFull(t *testing.T) {
	gateway, _ := newTestGateway(t)
	client := offlineClient(gateway, agentIdentity(uuid.New()), NamespaceTickets)

	for i := 0; i < gateway.opts.SendBufferSize; i++ {
		require.NoError(t, client.Deliver(domain.Envelope{Kind: "message.created"}))
	}

	err := client.Deliver(domain.Envelope{Kind: "message.created"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDeliveryFailed)

	// Send wraps the same failure and swallows it.
	gateway.Send(client, domain.Envelope{Kind: "message.created"})
}

// --- transport-level tests ---

// serveGateway exposes the gateway on a test HTTP server the way the
// HTTP adapter does: upgrade first, then hand the raw connection over.
func serveGateway(t *testing.T, gateway *Gateway, ns Namespace) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		_, _ = gateway.Accept(conn, r.URL.Query().Get("token"), ns)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + token
}

func TestGateway_RejectsInvalidCredentialWithCloseFrame(t *testing.T) {
	gateway, _ := newTestGateway(t)
	srv := serveGateway(t, gateway, NamespaceTickets)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "not-a-token"), nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation),
		"expected policy violation close, got %v", err)
	assert.Equal(t, 0, gateway.ConnectionCount(), "no connection record may survive a failed handshake")
}

func TestGateway_JoinAndReceiveDispatchedEvent(t *testing.T) {
	gateway, tokens := newTestGateway(t)
	srv := serveGateway(t, gateway, NamespaceTickets)

	tenantID := uuid.New()
	token, err := tokens.GenerateToken(uuid.New(), tenantID, domain.RoleAgent)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return gateway.ConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	join, _ := json.Marshal(map[string]any{
		"type":    "join",
		"payload": map[string]string{"topic": "tenant:" + tenantID.String()},
	})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, join))

	require.Eventually(t, func() bool {
		return gateway.TopicCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	event := &domain.Event{
		Kind:     domain.EventNotificationCreated,
		TenantID: tenantID,
		Payload:  json.RawMessage(`{"notificationId":"n1"}`),
	}
	result, err := gateway.dispatcher.Dispatch(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Delivered)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env domain.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "notification.created", env.Kind)
	assert.JSONEq(t, `{"notificationId":"n1"}`, string(env.Payload))
}

func TestGateway_ClientDisconnectTearsDownMembership(t *testing.T) {
	gateway, tokens := newTestGateway(t)
	srv := serveGateway(t, gateway, NamespaceConversations)

	tenantID := uuid.New()
	token, err := tokens.GenerateToken(uuid.New(), tenantID, domain.RoleCustomer)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)

	join, _ := json.Marshal(map[string]any{
		"type":    "join",
		"payload": map[string]string{"topic": "conversation:c1"},
	})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, join))
	require.Eventually(t, func() bool {
		return gateway.TopicCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return gateway.ConnectionCount() == 0 && gateway.TopicCount() == 0
	}, 2*time.Second, 10*time.Millisecond, "dropped transport must clear all registry entries")
}
