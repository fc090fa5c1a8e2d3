package models

import (
	"encoding/json"
	"fmt"
)

// Client -> server event types.
const (
	EventConnect     = "connect"
	EventJoinChat    = "join_chat"
	EventSendMessage = "send_message"
	EventNewChat     = "new_chat"
)

// Server -> client event types.
const (
	EventConnected  = "connected"
	EventChatJoined = "chat_joined"
	EventNewMessage = "new_message"
	EventError      = "error"
)

// Envelope carries the type discriminator of an incoming live-channel
// event plus the raw payload for deferred decoding.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the full raw bytes so the payload can be decoded
// into the concrete struct once the type is known.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("decode event envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ConnectPayload authenticates a connection. The token may instead be
// supplied as a query parameter at upgrade time.
type ConnectPayload struct {
	Token string `json:"token"`
}

// JoinChatPayload subscribes the connection to a chat room.
type JoinChatPayload struct {
	ChatID string `json:"chatId"`
}

// SendMessagePayload submits a message through the live channel.
type SendMessagePayload struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

// NewChatPayload asks the server to notify the other participant of a
// freshly created chat.
type NewChatPayload struct {
	ChatID string `json:"chatId"`
}

// ConnectedEvent acknowledges a successful connect to the caller only.
type ConnectedEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ChatJoinedEvent is broadcast to the chat room when a member joins.
type ChatJoinedEvent struct {
	Type    string `json:"type"`
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

// NewMessageEvent carries a freshly persisted message to a chat room.
type NewMessageEvent struct {
	Type string `json:"type"`
	MessageView
}

// NewChatEvent notifies a user's personal room that a chat now exists.
type NewChatEvent struct {
	Type         string           `json:"type"`
	ChatID       string           `json:"chatId"`
	Participants []string         `json:"participants"`
	LastMessage  *LastMessageView `json:"lastMessage"`
}

// ErrorEvent is delivered only to the connection that caused it.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
