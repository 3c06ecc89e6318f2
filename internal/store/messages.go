package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/keshon/gremlin/internal/mind"
)

// Message is one recorded chat message.
type Message struct {
	ChatID    string
	MessageID string
	UserID    string
	Username  string
	Text      string
	ReplyToID string
	IsBot     bool
	CreatedAt time.Time
}

// RecordMessage stores m. A message recorded twice is kept once and reported as ErrDuplicate.
func (s *Store) RecordMessage(ctx context.Context, m Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (chat_id, message_id, user_id, username, text, reply_to_id, is_bot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ChatID, m.MessageID, m.UserID, nullString(m.Username), m.Text, nullString(m.ReplyToID),
		boolInt(m.IsBot), m.CreatedAt.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// RecentTurns returns up to limit most recent turns of a chat, oldest first.
func (s *Store) RecentTurns(ctx context.Context, chatID string, limit int) ([]mind.ChatTurn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, user_id, text, is_bot FROM (
			SELECT username, user_id, text, is_bot, created_at, rowid AS rid
			FROM messages WHERE chat_id = ?
			ORDER BY created_at DESC, rid DESC
			LIMIT ?
		) ORDER BY created_at ASC, rid ASC`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []mind.ChatTurn
	for rows.Next() {
		var (
			username sql.NullString
			userID   string
			text     string
			isBot    int
		)
		if err := rows.Scan(&username, &userID, &text, &isBot); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		speaker := username.String
		if speaker == "" {
			speaker = userID
		}
		turns = append(turns, mind.ChatTurn{Speaker: speaker, Text: text, IsAutomated: isBot != 0})
	}
	return turns, rows.Err()
}

// LastHumanMessageAt is the time of the newest non-automated message, zero when none.
func (s *Store) LastHumanMessageAt(ctx context.Context, chatID string) (time.Time, error) {
	var ms sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM messages WHERE chat_id = ? AND is_bot = 0`, chatID).Scan(&ms)
	if err != nil {
		return time.Time{}, fmt.Errorf("query last message: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms.Int64), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
