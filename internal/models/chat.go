package models

import "time"

// Chat represents a private conversation between exactly two users.
// The participant pair is stored sorted so (a,b) and (b,a) map to the
// same row, and never changes after creation.
type Chat struct {
	ID            string    `db:"id" json:"id"`
	User1ID       string    `db:"user1_id" json:"user1_id"`
	User2ID       string    `db:"user2_id" json:"user2_id"`
	LastMessageID *string   `db:"last_message_id" json:"last_message_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// LastMessageView is the API-facing shape of a chat's most recent message.
type LastMessageView struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSummary is the per-user view of a chat returned by the chat list.
type ChatSummary struct {
	ChatID       string           `json:"chatId"`
	Participants []string         `json:"participants"`
	LastMessage  *LastMessageView `json:"lastMessage"`
}
