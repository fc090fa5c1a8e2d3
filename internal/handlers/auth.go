package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/auth"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
)

// AuthHandler serves login and token verification.
type AuthHandler struct {
	users  repositories.UserRepository
	tokens *auth.TokenManager
	audit  *telemetry.AuditEmitter
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(users repositories.UserRepository, tokens *auth.TokenManager, audit *telemetry.AuditEmitter) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, audit: audit}
}

// Login checks credentials and issues an access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		h.audit.Emit(c.Request.Context(), "WARN", "login rejected for "+req.Username, requestIDFromContext(c), nil)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "login succeeded", requestIDFromContext(c), &user.ID)
	c.JSON(http.StatusOK, gin.H{"username": user.Username, "token": token})
}

// Verify confirms the presented token is valid and returns the subject.
// The auth middleware has already rejected invalid tokens with 401.
func (h *AuthHandler) Verify(c *gin.Context) {
	userID := c.GetString("userID")
	c.JSON(http.StatusOK, gin.H{"message": "Token is valid", "user_id": userID})
}
