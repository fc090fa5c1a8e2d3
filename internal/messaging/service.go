// Package messaging is the single path through which a message is
// persisted and announced. Both the REST handler and the realtime
// gateway delegate here, so the durable store and the live channel can
// never disagree about a chat's messages or its last-message pointer.
package messaging

import (
	"context"
	"errors"
	"strings"

	"messenger-service/internal/access"
	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
)

// ErrEmptyText rejects blank or whitespace-only message bodies.
var ErrEmptyText = errors.New("message text is empty")

// Broadcaster fans an event out to every live connection in a room.
type Broadcaster interface {
	Broadcast(roomKey string, event any)
}

// Service validates, persists and broadcasts messages.
type Service struct {
	chats       repositories.ChatRepository
	messages    repositories.MessageRepository
	broadcaster Broadcaster
}

// NewService builds a Service.
func NewService(chats repositories.ChatRepository, messages repositories.MessageRepository, broadcaster Broadcaster) *Service {
	return &Service{chats: chats, messages: messages, broadcaster: broadcaster}
}

// Send persists a message and then announces it to the chat room. The
// broadcast carries the exact values just persisted and happens only
// after the transactional append-plus-pointer-update commits. A sender
// who is not a participant gets the same error as a missing chat.
func (s *Service) Send(ctx context.Context, senderID string, chatID string, text string) (models.MessageView, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.MessageView{}, err
	}
	if !access.CanAccess(senderID, chat) {
		return models.MessageView{}, repositories.ErrChatNotFound
	}
	if strings.TrimSpace(text) == "" {
		return models.MessageView{}, ErrEmptyText
	}

	view, err := s.messages.AppendMessage(ctx, chatID, senderID, text)
	if err != nil {
		return models.MessageView{}, err
	}

	s.broadcaster.Broadcast(chat.ID, models.NewMessageEvent{
		Type:        models.EventNewMessage,
		MessageView: view,
	})
	observability.IncMessageSent()
	return view, nil
}
