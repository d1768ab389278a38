package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/solvahq/realtime-gateway/internal/auth"
	"github.com/solvahq/realtime-gateway/internal/core/domain"
	apperrors "github.com/solvahq/realtime-gateway/internal/core/errors"
	"github.com/solvahq/realtime-gateway/internal/core/ports"
	"github.com/solvahq/realtime-gateway/internal/infrastructure/logging"
)

// Options tunes per-connection behavior of the gateway.
type Options struct {
	SendBufferSize int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		SendBufferSize: 256,
		PingInterval:   54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
	}
}

// Gateway owns the lifecycle of every real-time connection and exposes
// the join/leave/send/disconnect primitives to the rest of the system.
type Gateway struct {
	registry   *Registry
	tokens     *auth.TokenManager
	dispatcher ports.Dispatcher
	opts       Options

	// mu protects conns
	mu    sync.RWMutex
	conns map[uuid.UUID]*Client

	logger *slog.Logger
}

// NewGateway creates a gateway over the given registry. The dispatcher is
// only used to forward client-originated typing indicators.
func NewGateway(registry *Registry, tokens *auth.TokenManager, dispatcher ports.Dispatcher, opts Options, logger *slog.Logger) *Gateway {
	if opts.SendBufferSize <= 0 {
		opts = DefaultOptions()
	}
	return &Gateway{
		registry:   registry,
		tokens:     tokens,
		dispatcher: dispatcher,
		opts:       opts,
		conns:      make(map[uuid.UUID]*Client),
		logger:     logger.With("component", "gateway"),
	}
}

// Accept authenticates a freshly upgraded connection and registers it.
// On a bad credential the raw connection is closed immediately with a
// reason and no Connection record is left behind; the client must retry
// with a fresh credential.
func (g *Gateway) Accept(conn *websocket.Conn, credential string, ns Namespace) (*Client, error) {
	claims, err := g.tokens.ValidateToken(credential)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(g.opts.WriteWait))
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", apperrors.ErrAuthenticationFailed, err)
	}

	client := newClient(g, conn, claims.Identity(), ns, g.logger)

	g.mu.Lock()
	g.conns[client.id] = client
	total := len(g.conns)
	g.mu.Unlock()

	g.logger.Info("connection accepted",
		"connection_id", client.id,
		"user_id", client.identity.UserID,
		"tenant_id", client.identity.TenantID,
		"namespace", string(ns),
		"total_connections", total,
	)

	go client.WritePump()
	go client.ReadPump()

	return client, nil
}

// Join subscribes the connection to a topic. Idempotent. A topic outside
// the connection's namespace, or belonging to a tenant the identity may
// not access, is refused with no side effect.
func (g *Gateway) Join(c *Client, topic domain.Topic) error {
	if !c.namespace.Allows(topic.Family()) {
		return fmt.Errorf("%w: topic %s not available on namespace %s", apperrors.ErrTopicForbidden, topic, c.namespace)
	}

	if topic.Family() == domain.TopicFamilyTenant {
		if topic.ID() != c.identity.TenantID.String() {
			return fmt.Errorf("%w: tenant room %s does not belong to this identity", apperrors.ErrTopicForbidden, topic)
		}
		if !c.identity.Role.IsStaff() {
			return fmt.Errorf("%w: tenant room requires a staff role", apperrors.ErrTopicForbidden)
		}
	}

	g.registry.Join(topic, c)
	c.addTopic(topic)

	c.logger.Debug("joined topic", "topic", topic.String())
	return nil
}

// Leave unsubscribes the connection from a topic. Removing a non-member
// is a no-op, not an error.
func (g *Gateway) Leave(c *Client, topic domain.Topic) {
	g.registry.Leave(topic, c.id)
	c.removeTopic(topic)

	c.logger.Debug("left topic", "topic", topic.String())
}

// Disconnect tears the connection down: every joined topic is left
// (emptied topics are garbage-collected by the registry) and the record
// is removed. Exactly-once regardless of how the transport dropped; a
// second call is a no-op.
func (g *Gateway) Disconnect(c *Client) {
	c.disconnectOnce.Do(func() {
		for _, topic := range c.Topics() {
			g.registry.Leave(topic, c.id)
			c.removeTopic(topic)
		}

		g.mu.Lock()
		delete(g.conns, c.id)
		total := len(g.conns)
		g.mu.Unlock()

		c.closeSend()

		g.logger.Info("connection closed",
			"connection_id", c.id,
			"user_id", c.identity.UserID,
			"connected_for", time.Since(c.createdAt).Round(time.Millisecond).String(),
			"total_connections", total,
		)
	})
}

// Send delivers one envelope to one connection, best effort. A failure
// (connection gone, buffer full) is logged and swallowed so a broadcast
// over many connections never aborts on one bad peer.
func (g *Gateway) Send(c *Client, env domain.Envelope) {
	if err := c.Deliver(env); err != nil {
		g.logger.Warn("delivery failed",
			"connection_id", c.id,
			"kind", env.Kind,
			"error", err,
		)
	}
}

// ConnectionCount returns the number of live connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// TopicCount returns the number of topics with at least one member.
func (g *Gateway) TopicCount() int {
	return g.registry.TopicCount()
}

// forwardTyping turns a client typing indicator into a fire-and-forget
// dispatch. Typing is ephemeral: a routing or delivery failure is logged
// and dropped, never surfaced to the sender.
func (g *Gateway) forwardTyping(c *Client, p typingPayload) {
	body, err := json.Marshal(struct {
		TicketID       string    `json:"ticketId,omitempty"`
		ConversationID string    `json:"conversationId,omitempty"`
		UserID         uuid.UUID `json:"userId"`
		IsTyping       bool      `json:"isTyping"`
	}{
		TicketID:       p.TicketID,
		ConversationID: p.ConversationID,
		UserID:         c.identity.UserID,
		IsTyping:       p.IsTyping,
	})
	if err != nil {
		return
	}

	event := &domain.Event{
		Kind:           domain.EventTicketTyping,
		TenantID:       c.identity.TenantID,
		ConversationID: p.ConversationID,
		TicketID:       p.TicketID,
		Payload:        body,
	}

	ctx := logging.WithConnectionID(context.Background(), c.id.String())
	ctx = logging.WithUserID(ctx, c.identity.UserID.String())

	if _, err := g.dispatcher.Dispatch(ctx, event); err != nil {
		c.logger.Debug("typing indicator dropped", "error", err)
	}
}
