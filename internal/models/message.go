package models

import "time"

// Message is an immutable chat event as stored.
type Message struct {
	ID        string    `db:"id" json:"id"`
	ChatID    string    `db:"chat_id" json:"chat_id"`
	SenderID  string    `db:"sender_id" json:"sender_id"`
	Text      string    `db:"text" json:"text"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MessageView is the API-facing shape of a message, with the sender
// resolved to a username. The same view is persisted-and-returned by the
// store and broadcast over the live channel, so the two paths can never
// disagree on a message's contents.
type MessageView struct {
	MessageID string    `db:"id" json:"messageId"`
	ChatID    string    `db:"chat_id" json:"chatId"`
	Sender    string    `db:"sender" json:"sender"`
	Text      string    `db:"text" json:"text"`
	Timestamp time.Time `db:"created_at" json:"timestamp"`

	// Seq orders messages within a chat. created_at reflects transaction
	// start and can interleave under concurrency; seq cannot.
	Seq int64 `db:"seq" json:"-"`
}
