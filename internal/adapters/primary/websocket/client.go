package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/solvahq/realtime-gateway/internal/core/domain"
	apperrors "github.com/solvahq/realtime-gateway/internal/core/errors"
	"github.com/solvahq/realtime-gateway/internal/core/ports"
)

const (
	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Namespace scopes which topic families a connection may join. Two
// namespaces are exposed: one for ticket events, one for conversation
// events. Both allow the tenant-wide room.
type Namespace string

const (
	NamespaceTickets       Namespace = "tickets"
	NamespaceConversations Namespace = "conversations"
)

// Allows reports whether the namespace permits joining the given family.
func (n Namespace) Allows(family domain.TopicFamily) bool {
	switch n {
	case NamespaceTickets:
		return family == domain.TopicFamilyTenant || family == domain.TopicFamilyTicket
	case NamespaceConversations:
		return family == domain.TopicFamilyTenant || family == domain.TopicFamilyConversation
	default:
		return false
	}
}

// Client is one authenticated real-time connection: the socket, the
// identity behind it, and its current topic set. Owned exclusively by the
// Gateway; destroyed on disconnect.
type Client struct {
	id        uuid.UUID
	gateway   *Gateway
	conn      *websocket.Conn
	identity  domain.Identity
	namespace Namespace

	// Buffered channel of outbound envelopes.
	send chan domain.Envelope

	// mu protects topics, lastActive and closed
	mu         sync.RWMutex
	topics     map[domain.Topic]bool
	lastActive time.Time
	closed     bool

	createdAt time.Time

	// closeOnce ensures the send channel is only closed once
	closeOnce sync.Once

	// disconnectOnce makes Gateway.Disconnect exactly-once
	disconnectOnce sync.Once

	logger *slog.Logger
}

// Ensure Client implements the Subscriber port.
var _ ports.Subscriber = (*Client)(nil)

func newClient(gateway *Gateway, conn *websocket.Conn, identity domain.Identity, ns Namespace, logger *slog.Logger) *Client {
	id := uuid.New()
	now := time.Now()
	return &Client{
		id:         id,
		gateway:    gateway,
		conn:       conn,
		identity:   identity,
		namespace:  ns,
		send:       make(chan domain.Envelope, gateway.opts.SendBufferSize),
		topics:     make(map[domain.Topic]bool),
		lastActive: now,
		createdAt:  now,
		logger: logger.With(
			"connection_id", id.String(),
			"user_id", identity.UserID.String(),
			"tenant_id", identity.TenantID.String(),
			"namespace", string(ns),
		),
	}
}

// ID returns the process-unique connection identifier.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// Identity returns the identity the connection authenticated as.
func (c *Client) Identity() domain.Identity {
	return c.identity
}

// Deliver queues one envelope for the connection without blocking. A
// closed connection or a full send buffer is a delivery failure; the
// caller decides whether that matters.
func (c *Client) Deliver(env domain.Envelope) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("%w: connection %s is closed", apperrors.ErrDeliveryFailed, c.id)
	}

	select {
	case c.send <- env:
		return nil
	default:
		return fmt.Errorf("%w: send buffer full for connection %s", apperrors.ErrDeliveryFailed, c.id)
	}
}

// closeSend marks the client closed and closes the send channel exactly
// once. Safe against concurrent Deliver calls.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
}

func (c *Client) addTopic(topic domain.Topic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topic] = true
}

func (c *Client) removeTopic(topic domain.Topic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, topic)
}

// Topics returns a copy of the client's current topic set.
func (c *Client) Topics() []domain.Topic {
	c.mu.RLock()
	defer c.mu.RUnlock()

	topics := make([]domain.Topic, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	return topics
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

// ReadPump pumps messages from the websocket connection to the gateway.
// This method runs in its own goroutine. When the transport drops, for
// any reason, the deferred Disconnect tears down all topic membership so
// stale registry entries never accumulate.
func (c *Client) ReadPump() {
	defer func() {
		c.gateway.Disconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.gateway.opts.PongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		c.touch()
		if err := c.conn.SetReadDeadline(time.Now().Add(c.gateway.opts.PongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		c.touch()
		c.handleIncomingMessage(message)
	}
}

// WritePump pumps envelopes from the gateway to the websocket connection.
// This method runs in its own goroutine. Each write carries its own
// deadline, so one slow peer only ever stalls its own connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.gateway.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.gateway.opts.WriteWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The gateway closed the channel. Send close message.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.writeJSON(env); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.gateway.opts.WriteWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// writeJSON writes a JSON envelope to the websocket connection
func (c *Client) writeJSON(env domain.Envelope) error {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(env); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}

// --- Incoming Message Handling ---

// clientMessage is the structure for messages sent from the client.
type clientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// topicPayload is the payload for join/leave messages
type topicPayload struct {
	Topic string `json:"topic"`
}

// typingPayload is the payload for typing indicator messages
type typingPayload struct {
	TicketID       string `json:"ticketId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	IsTyping       bool   `json:"isTyping"`
}

// errorPayload is sent back to the client as an "error" event
type errorPayload struct {
	Topic  string `json:"topic,omitempty"`
	Reason string `json:"reason"`
}

// handleIncomingMessage processes messages received from the client
func (c *Client) handleIncomingMessage(message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		c.sendError("", "malformed message")
		return
	}

	switch msg.Type {
	case "join":
		c.handleJoin(msg.Payload)

	case "leave":
		c.handleLeave(msg.Payload)

	case "typing":
		c.handleTyping(msg.Payload)

	case "ping":
		// Client-side keep-alive, respond with pong
		c.sendPong()

	default:
		c.logger.Debug("received unknown message type", "type", msg.Type)
	}
}

func (c *Client) handleJoin(payload json.RawMessage) {
	var p topicPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("failed to unmarshal join payload", "error", err)
		c.sendError("", "malformed join payload")
		return
	}

	topic, err := domain.ParseTopic(p.Topic)
	if err != nil {
		c.sendError(p.Topic, "invalid topic")
		return
	}

	if err := c.gateway.Join(c, topic); err != nil {
		c.sendError(p.Topic, "join refused: "+err.Error())
	}
}

func (c *Client) handleLeave(payload json.RawMessage) {
	var p topicPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("failed to unmarshal leave payload", "error", err)
		return
	}

	topic, err := domain.ParseTopic(p.Topic)
	if err != nil {
		c.sendError(p.Topic, "invalid topic")
		return
	}

	c.gateway.Leave(c, topic)
}

func (c *Client) handleTyping(payload json.RawMessage) {
	var p typingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("failed to unmarshal typing payload", "error", err)
		return
	}

	c.gateway.forwardTyping(c, p)
}

// sendError surfaces a per-connection failure as a distinct "error"
// event; the connection itself keeps working.
func (c *Client) sendError(topic, reason string) {
	body, err := json.Marshal(errorPayload{Topic: topic, Reason: reason})
	if err != nil {
		return
	}

	if err := c.Deliver(domain.Envelope{Kind: "error", Payload: body}); err != nil {
		c.logger.Debug("failed to deliver error event", "error", err)
	}
}

func (c *Client) sendPong() {
	if err := c.Deliver(domain.Envelope{Kind: "pong"}); err != nil {
		c.logger.Debug("failed to deliver pong", "error", err)
	}
}
