package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messenger-service/internal/access"
	"messenger-service/internal/auth"
	"messenger-service/internal/messaging"
	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
)

// MessageSender persists a message and fans it out; implemented by the
// messaging service.
type MessageSender interface {
	Send(ctx context.Context, senderID string, chatID string, text string) (models.MessageView, error)
}

// Gateway drives the live-channel protocol: it authenticates
// connections, validates event payloads and routes them to the hub and
// the message service. A failed event produces an error event for the
// originating connection only; the connection itself stays up.
type Gateway struct {
	hub      *Hub
	verifier auth.TokenVerifier
	chats    repositories.ChatRepository
	users    repositories.UserRepository
	sender   MessageSender
}

// NewGateway constructs a Gateway.
func NewGateway(hub *Hub, verifier auth.TokenVerifier, chats repositories.ChatRepository, users repositories.UserRepository, sender MessageSender) *Gateway {
	return &Gateway{hub: hub, verifier: verifier, chats: chats, users: users, sender: sender}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and starts its pumps. A token supplied
// as ?token= or an Authorization header is kept for the connect event.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.Query("token")
	if token == "" {
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				token = parts[1]
			}
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	meta := observability.MetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		DeviceID:    meta.DeviceID,
		IP:          meta.ClientIP,
		RequestID:   meta.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := newClient(conn, info)
	client.pendingToken = token

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	g.publishLifecycle(ctx, client, "ws_connect", "")

	// the upgrade request's context is canceled the moment this handler
	// returns, but the hijacked connection lives on. The read loop keeps
	// the trace values without the cancellation.
	connCtx := context.WithoutCancel(ctx)

	go client.writePump()
	go g.readLoop(connCtx, client)
}

func (g *Gateway) readLoop(ctx context.Context, client *Client) {
	var closeReason string
	defer func() {
		g.hub.LeaveAll(client)
		client.close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		g.publishLifecycle(ctx, client, "ws_disconnect", closeReason)
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}
		g.dispatch(ctx, client, data)
	}
}

// dispatch routes one incoming event. Panics in handlers are contained
// here: the offending event fails, the connection and its peers survive.
func (g *Gateway) dispatch(ctx context.Context, client *Client, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ws event panic: %v", r)
			g.sendError(client, "failed to process event")
		}
	}()

	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		g.sendError(client, "invalid event format")
		return
	}
	observability.IncWSEvent(wsEventLabel(env.Type))

	switch env.Type {
	case models.EventConnect:
		g.handleConnect(client, env.Raw)
	case models.EventJoinChat:
		g.handleJoinChat(ctx, client, env.Raw)
	case models.EventSendMessage:
		g.handleSendMessage(ctx, client, env.Raw)
	case models.EventNewChat:
		g.handleNewChat(ctx, client, env.Raw)
	default:
		g.sendError(client, "unknown event type")
	}
}

func (g *Gateway) handleConnect(client *Client, raw json.RawMessage) {
	var payload models.ConnectPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		g.sendError(client, "invalid event format")
		return
	}

	token := payload.Token
	if token == "" {
		token = client.pendingToken
	}
	if token == "" {
		g.sendError(client, "authentication token is required")
		return
	}

	userID, err := g.verifier.Verify(token)
	if err != nil {
		g.sendError(client, "invalid authentication token")
		return
	}

	client.userID = userID
	client.pendingToken = ""
	g.hub.Join(userID, client)
	client.sendEvent(models.ConnectedEvent{Type: models.EventConnected, Message: "connected"})
}

func (g *Gateway) handleJoinChat(ctx context.Context, client *Client, raw json.RawMessage) {
	if !g.requireAuth(client) {
		return
	}

	var payload models.JoinChatPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ChatID == "" {
		g.sendError(client, "chatId is required")
		return
	}

	chat, err := g.chats.GetChat(ctx, payload.ChatID)
	if err != nil || !access.CanAccess(client.userID, chat) {
		if err != nil && !errors.Is(err, repositories.ErrChatNotFound) {
			log.Printf("ws join_chat: %v", err)
		}
		g.sendError(client, "chat not found")
		return
	}

	g.hub.Join(chat.ID, client)
	g.hub.Broadcast(chat.ID, models.ChatJoinedEvent{
		Type:    models.EventChatJoined,
		ChatID:  chat.ID,
		Message: "joined chat " + chat.ID,
	})
}

func (g *Gateway) handleSendMessage(ctx context.Context, client *Client, raw json.RawMessage) {
	if !g.requireAuth(client) {
		return
	}

	var payload models.SendMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ChatID == "" {
		g.sendError(client, "chatId and text are required")
		return
	}

	// the service broadcasts new_message itself after the persist commits
	if _, err := g.sender.Send(ctx, client.userID, payload.ChatID, payload.Text); err != nil {
		switch {
		case errors.Is(err, repositories.ErrChatNotFound):
			g.sendError(client, "chat not found")
		case errors.Is(err, messaging.ErrEmptyText):
			g.sendError(client, "message text is empty")
		default:
			log.Printf("ws send_message: %v", err)
			g.sendError(client, "failed to send message")
		}
	}
}

// handleNewChat relays a chat-created notice to the other participant's
// personal room. The recipient is derived from the stored chat, never
// from client-supplied participant lists.
func (g *Gateway) handleNewChat(ctx context.Context, client *Client, raw json.RawMessage) {
	if !g.requireAuth(client) {
		return
	}

	var payload models.NewChatPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ChatID == "" {
		g.sendError(client, "chatId is required")
		return
	}

	chat, err := g.chats.GetChat(ctx, payload.ChatID)
	if err != nil || !access.CanAccess(client.userID, chat) {
		g.sendError(client, "chat not found")
		return
	}

	otherID := chat.User1ID
	if otherID == client.userID {
		otherID = chat.User2ID
	}

	user1, err := g.users.GetUserByID(ctx, chat.User1ID)
	if err != nil {
		g.sendError(client, "failed to notify new chat")
		return
	}
	user2, err := g.users.GetUserByID(ctx, chat.User2ID)
	if err != nil {
		g.sendError(client, "failed to notify new chat")
		return
	}

	g.hub.Broadcast(otherID, models.NewChatEvent{
		Type:         models.EventNewChat,
		ChatID:       chat.ID,
		Participants: []string{user1.Username, user2.Username},
	})
}

// wsEventLabel caps the event metric's label set at the known event
// types so clients cannot inflate label cardinality.
func wsEventLabel(eventType string) string {
	switch eventType {
	case models.EventConnect, models.EventJoinChat, models.EventSendMessage, models.EventNewChat:
		return eventType
	}
	return "unknown"
}

func (g *Gateway) requireAuth(client *Client) bool {
	if client.userID == "" {
		g.sendError(client, "authentication required")
		return false
	}
	return true
}

func (g *Gateway) sendError(client *Client, message string) {
	client.sendEvent(models.ErrorEvent{Type: models.EventError, Message: message})
}

func (g *Gateway) publishLifecycle(ctx context.Context, client *Client, event string, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     client.connID,
			"duration_ms": time.Since(client.info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   client.userID,
			"device_id": client.info.DeviceID,
			"ip":        client.info.IP,
		},
	}

	headers := observability.BuildHeaders(client.info.RequestID, client.info.TraceID)
	_ = observability.PublishEvent(ctx, "ws_events.messenger", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}
