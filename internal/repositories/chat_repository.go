package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messenger-service/internal/models"
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrChatExists   = errors.New("chat already exists")
)

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	CreateChat(ctx context.Context, userA string, userB string) (models.Chat, error)
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	ListChatsForUser(ctx context.Context, userID string) ([]models.ChatSummary, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// orderPair stores the participant pair sorted so (a,b) and (b,a)
// resolve to the same chat row.
func orderPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// CreateChat creates a chat between two users. It fails with ErrChatExists
// when the pair already has one, regardless of argument order.
func (r *ChatRepo) CreateChat(ctx context.Context, userA string, userB string) (models.Chat, error) {
	if userA == userB {
		return models.Chat{}, errors.New("cannot create chat with self")
	}
	user1, user2 := orderPair(userA, userB)

	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM chats WHERE user1_id=$1 AND user2_id=$2)`, user1, user2); err != nil {
		return models.Chat{}, err
	}
	if exists {
		return models.Chat{}, ErrChatExists
	}

	var chat models.Chat
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO chats (id, user1_id, user2_id) VALUES ($1, $2, $3)
         RETURNING id, user1_id, user2_id, last_message_id, created_at`,
		uuid.NewString(), user1, user2).StructScan(&chat)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Chat{}, ErrChatExists
		}
		return models.Chat{}, err
	}
	return chat, nil
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`SELECT id, user1_id, user2_id, last_message_id, created_at FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// ListChatsForUser returns every chat the user participates in, with
// participant usernames and the last-message view resolved.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	query := `SELECT c.id, u1.username AS user1_name, u2.username AS user2_name,
                 m.text AS last_text, m.created_at AS last_at, su.username AS last_sender
          FROM chats c
          JOIN users u1 ON u1.id = c.user1_id
          JOIN users u2 ON u2.id = c.user2_id
          LEFT JOIN messages m ON m.id = c.last_message_id
          LEFT JOIN users su ON su.id = m.sender_id
          WHERE c.user1_id=$1 OR c.user2_id=$1
          ORDER BY c.created_at DESC`

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []models.ChatSummary{}
	for rows.Next() {
		var row struct {
			ID         string         `db:"id"`
			User1Name  string         `db:"user1_name"`
			User2Name  string         `db:"user2_name"`
			LastText   sql.NullString `db:"last_text"`
			LastAt     sql.NullTime   `db:"last_at"`
			LastSender sql.NullString `db:"last_sender"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}

		summary := models.ChatSummary{
			ChatID:       row.ID,
			Participants: []string{row.User1Name, row.User2Name},
		}
		if row.LastText.Valid {
			summary.LastMessage = &models.LastMessageView{
				Sender:    row.LastSender.String,
				Text:      row.LastText.String,
				Timestamp: row.LastAt.Time,
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}
