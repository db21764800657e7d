package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutorlink/session-core/internal/domain"
	"github.com/tutorlink/session-core/internal/persistence"
)

// MessageRepository persists chat messages between two principals.
type MessageRepository interface {
	// Create stores msg. ID and CreatedAt are assigned by the caller.
	Create(ctx context.Context, msg *domain.Message) error
	// Conversation marks every unread peer->requester message as read at
	// readAt, then returns the whole pair ordered by (created_at, id), in one
	// transaction.
	Conversation(ctx context.Context, requesterID, peerID string, readAt time.Time) (domain.Conversation, error)
	// UnreadSummary counts unread messages addressed to recipientID, by sender.
	UnreadSummary(ctx context.Context, recipientID string) (map[string]int, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (id, sender_id, recipient_id, content, created_at)
        VALUES ($1,$2,$3,$4,$5)`
	if _, err := r.pool.Exec(ctx, query,
		msg.ID,
		msg.SenderID,
		msg.RecipientID,
		msg.Content,
		msg.CreatedAt,
	); err != nil {
		return domain.Unavailable("create message", err)
	}
	return nil
}

func (r *messageRepository) Conversation(ctx context.Context, requesterID, peerID string, readAt time.Time) (domain.Conversation, error) {
	const markRead = `
        UPDATE messages SET read=TRUE, read_at=$3
        WHERE sender_id=$2 AND recipient_id=$1 AND read=FALSE
        RETURNING id`
	const list = `
        SELECT id, sender_id, recipient_id, content, created_at, read, read_at
        FROM messages
        WHERE (sender_id=$1 AND recipient_id=$2) OR (sender_id=$2 AND recipient_id=$1)
        ORDER BY created_at ASC, id ASC`

	conv := domain.Conversation{ReadAt: readAt}
	err := persistence.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, markRead, requesterID, peerID, readAt)
		if err != nil {
			return err
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		conv.NewlyRead = ids

		rows, err = tx.Query(ctx, list, requesterID, peerID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var msg domain.Message
			if err := rows.Scan(
				&msg.ID,
				&msg.SenderID,
				&msg.RecipientID,
				&msg.Content,
				&msg.CreatedAt,
				&msg.Read,
				&msg.ReadAt,
			); err != nil {
				return err
			}
			conv.Messages = append(conv.Messages, msg)
		}
		return rows.Err()
	})
	if err != nil {
		return domain.Conversation{}, domain.Unavailable("load conversation", err)
	}
	return conv, nil
}

func (r *messageRepository) UnreadSummary(ctx context.Context, recipientID string) (map[string]int, error) {
	const query = `
        SELECT sender_id, COUNT(*) FROM messages
        WHERE recipient_id=$1 AND read=FALSE
        GROUP BY sender_id`
	rows, err := r.pool.Query(ctx, query, recipientID)
	if err != nil {
		return nil, domain.Unavailable("unread summary", err)
	}
	defer rows.Close()

	summary := make(map[string]int)
	for rows.Next() {
		var senderID string
		var count int
		if err := rows.Scan(&senderID, &count); err != nil {
			return nil, domain.Unavailable("unread summary", err)
		}
		summary[senderID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("unread summary", err)
	}
	return summary, nil
}
