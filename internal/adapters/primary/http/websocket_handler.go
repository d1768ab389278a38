package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	wsAdapter "github.com/solvahq/realtime-gateway/internal/adapters/primary/websocket"
	"github.com/solvahq/realtime-gateway/internal/config"
)

// WebSocketHandler upgrades inbound connections and hands them to the
// Gateway. Two namespaces are exposed: one scoped to ticket events, one
// scoped to conversation events.
type WebSocketHandler struct {
	gateway  *wsAdapter.Gateway
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(gateway *wsAdapter.Gateway, cfg *config.Config, logger *slog.Logger) *WebSocketHandler {
	handler := &WebSocketHandler{
		gateway: gateway,
		logger:  logger,
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin:     handler.makeOriginChecker(cfg),
	}

	return handler
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *WebSocketHandler) makeOriginChecker(cfg *config.Config) func(r *http.Request) bool {
	allowedOrigins := cfg.WebSocket.AllowedOrigins

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// In development mode, allow all origins (but log a warning)
		if cfg.IsDevelopment() {
			if origin != "" {
				h.logger.Warn("allowing websocket connection in development mode",
					"origin", origin,
					"remote_addr", r.RemoteAddr,
				)
			}
			return true
		}

		// No origin header (same-origin request or non-browser client)
		if origin == "" {
			return true
		}

		// Check against allowed origins
		parsedOrigin, err := url.Parse(origin)
		if err != nil {
			h.logger.Warn("failed to parse websocket origin",
				"origin", origin,
				"error", err,
			)
			return false
		}

		originHost := parsedOrigin.Host

		for _, allowed := range allowedOrigins {
			// Support wildcard subdomains like "*.example.com"
			if strings.HasPrefix(allowed, "*.") {
				suffix := allowed[1:] // Remove the "*", keep ".example.com"
				if strings.HasSuffix(originHost, suffix) || originHost == allowed[2:] {
					return true
				}
			} else if originHost == allowed {
				return true
			}
		}

		h.logger.Warn("websocket connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}

// HandleTickets upgrades a connection into the ticket-events namespace.
func (h *WebSocketHandler) HandleTickets(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, wsAdapter.NamespaceTickets)
}

// HandleConversations upgrades a connection into the conversation-events
// namespace.
func (h *WebSocketHandler) HandleConversations(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, wsAdapter.NamespaceConversations)
}

func (h *WebSocketHandler) serve(w http.ResponseWriter, r *http.Request, ns wsAdapter.Namespace) {
	requestID := GetRequestID(r.Context())

	// 1. A connection without a credential is rejected before the upgrade.
	token := extractToken(r)
	if token == "" {
		h.logger.Warn("websocket connection rejected: missing token",
			"request_id", requestID,
			"remote_addr", r.RemoteAddr,
			"namespace", string(ns),
		)
		http.Error(w, "Missing authentication token", http.StatusUnauthorized)
		return
	}

	// 2. Upgrade the connection.
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket connection",
			"request_id", requestID,
			"error", err,
		)
		return
	}

	// 3. Hand the raw connection to the gateway. An invalid credential
	// closes the socket immediately with a reason; no record remains.
	if _, err := h.gateway.Accept(conn, token, ns); err != nil {
		h.logger.Warn("websocket connection rejected",
			"request_id", requestID,
			"remote_addr", r.RemoteAddr,
			"namespace", string(ns),
			"error", err,
		)
	}
}

// extractToken pulls the bearer token from the query string or the
// Authorization header. Browser clients cannot set headers on websocket
// handshakes, so the query parameter comes first.
func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return ""
}
