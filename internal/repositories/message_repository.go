package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for chat messages. AppendMessage
// is the only writer of message rows and of chats.last_message_id.
type MessageRepository interface {
	AppendMessage(ctx context.Context, chatID string, senderID string, text string) (models.MessageView, error)
	ListChatMessages(ctx context.Context, chatID string) ([]models.MessageView, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// AppendMessage inserts the message and moves the chat's last-message
// pointer in a single transaction, so no reader ever sees one without
// the other.
func (r *MessageRepo) AppendMessage(ctx context.Context, chatID string, senderID string, text string) (models.MessageView, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.MessageView{}, err
	}
	defer tx.Rollback()

	var view models.MessageView
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (id, chat_id, sender_id, text)
         VALUES ($1, $2, $3, $4)
         RETURNING id, chat_id, (SELECT username FROM users WHERE id=$3) AS sender, text, created_at, seq`,
		uuid.NewString(), chatID, senderID, text).StructScan(&view)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.MessageView{}, ErrChatNotFound
		}
		return models.MessageView{}, err
	}

	// only a higher seq may move the pointer, so concurrent commits in
	// either order leave it on the message ListChatMessages returns last
	_, err = tx.ExecContext(ctx,
		`UPDATE chats c SET last_message_id=$1
         WHERE c.id=$2
           AND (c.last_message_id IS NULL
                OR (SELECT m.seq FROM messages m WHERE m.id = c.last_message_id) < $3)`,
		view.MessageID, chatID, view.Seq)
	if err != nil {
		return models.MessageView{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.MessageView{}, err
	}
	return view, nil
}

// ListChatMessages returns a chat's messages oldest first, in seq order.
func (r *MessageRepo) ListChatMessages(ctx context.Context, chatID string) ([]models.MessageView, error) {
	query := `SELECT m.id, m.chat_id, u.username AS sender, m.text, m.created_at, m.seq
          FROM messages m
          JOIN users u ON u.id = m.sender_id
          WHERE m.chat_id=$1
          ORDER BY m.seq ASC`

	msgs := []models.MessageView{}
	err := r.db.SelectContext(ctx, &msgs, query, chatID)
	return msgs, err
}
