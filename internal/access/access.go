// Package access decides whether a user may read or write a chat.
package access

import "messenger-service/internal/models"

// CanAccess reports whether userID is one of the chat's two participants.
// Callers treat false as not-found so chat existence is never confirmed
// to outsiders.
func CanAccess(userID string, chat models.Chat) bool {
	return userID != "" && (chat.User1ID == userID || chat.User2ID == userID)
}
