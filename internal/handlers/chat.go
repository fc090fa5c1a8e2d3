package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/access"
	"messenger-service/internal/messaging"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
)

// MessageSender is the messaging service as seen by the REST layer.
type MessageSender interface {
	Send(ctx context.Context, senderID string, chatID string, text string) (models.MessageView, error)
}

// ChatHandler manages the chat and message endpoints.
type ChatHandler struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	sender   MessageSender
	audit    *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chats repositories.ChatRepository, messages repositories.MessageRepository, users repositories.UserRepository, sender MessageSender, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{chats: chats, messages: messages, users: users, sender: sender, audit: audit}
}

// ListChats returns every chat the authenticated user participates in,
// each with its last-message view.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetString("userID")

	chats, err := h.chats.ListChatsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	c.JSON(http.StatusOK, chats)
}

// GetChatMessages returns a chat's messages, oldest first. Non-participants
// get the same 404 as a missing chat.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	chatID := c.Param("chat_id")
	userID := c.GetString("userID")

	chat, err := h.chats.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	if !access.CanAccess(userID, chat) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}

	msgs, err := h.messages.ListChatMessages(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chatId": chat.ID, "messages": msgs})
}

// PostMessage persists a message through the messaging service, which also
// broadcasts it to the chat room.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		ChatID string `json:"chat_id" binding:"required"`
		Text   string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	view, err := h.sender.Send(c.Request.Context(), userID, req.ChatID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrChatNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		case errors.Is(err, messaging.ErrEmptyText):
			c.JSON(http.StatusBadRequest, gin.H{"error": "message text is empty"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		}
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "message sent to chat "+req.ChatID, requestIDFromContext(c), &userID)
	c.JSON(http.StatusCreated, view)
}

// CreateChat starts a chat with the named user. A chat with an unknown
// user or with oneself is 404; a duplicate pair is 400.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req struct {
		ParticipantUsername string `json:"participant_username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	me, err := h.users.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	other, err := h.users.GetUserByUsername(c.Request.Context(), req.ParticipantUsername)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}
	if other.ID == me.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	chat, err := h.chats.CreateChat(c.Request.Context(), me.ID, other.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrChatExists) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "chat already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "chat created with "+other.Username, requestIDFromContext(c), &userID)
	c.JSON(http.StatusCreated, gin.H{
		"chatId":       chat.ID,
		"participants": []string{me.Username, other.Username},
	})
}
