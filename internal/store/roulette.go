package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Winner struct {
	ChatID    string
	UserID    string
	Username  string
	TitleCode string
	Title     string
	WonAt     string // YYYY-MM-DD in the bot's calendar
	CreatedAt time.Time
}

type Participant struct {
	ChatID       string
	UserID       string
	Username     string
	RegisteredAt time.Time
}

// TitleLeader is the user who holds a title code most often within a period.
type TitleLeader struct {
	TitleCode string
	UserID    string
	Username  string
	Count     int
}

func (s *Store) HasWinner(ctx context.Context, chatID, day string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM roulette_winners WHERE chat_id = ? AND won_at = ?`, chatID, day).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count winners: %w", err)
	}
	return n > 0, nil
}

func (s *Store) InsertWinner(ctx context.Context, w Winner) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roulette_winners (chat_id, user_id, username, title_code, title, won_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ChatID, w.UserID, nullString(w.Username), w.TitleCode, w.Title, w.WonAt, w.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert winner: %w", err)
	}
	return nil
}

// WinnersOn lists the winners of one chat for one day, oldest first.
func (s *Store) WinnersOn(ctx context.Context, chatID, day string) ([]Winner, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, username, title_code, title, created_at
		FROM roulette_winners WHERE chat_id = ? AND won_at = ?
		ORDER BY created_at, id`, chatID, day)
	if err != nil {
		return nil, fmt.Errorf("query winners: %w", err)
	}
	defer rows.Close()

	var out []Winner
	for rows.Next() {
		var (
			w        Winner
			username sql.NullString
			ms       int64
		)
		if err := rows.Scan(&w.UserID, &username, &w.TitleCode, &w.Title, &ms); err != nil {
			return nil, fmt.Errorf("scan winner: %w", err)
		}
		w.ChatID = chatID
		w.Username = username.String
		w.WonAt = day
		w.CreatedAt = time.UnixMilli(ms)
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteWinners removes the winners of one chat for one day and reports how many went.
func (s *Store) DeleteWinners(ctx context.Context, chatID, day string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM roulette_winners WHERE chat_id = ? AND won_at = ?`, chatID, day)
	if err != nil {
		return 0, fmt.Errorf("delete winners: %w", err)
	}
	return res.RowsAffected()
}

// LastTitle is the title of the most recent winner, "" when the chat has none.
func (s *Store) LastTitle(ctx context.Context, chatID string) (string, error) {
	var title string
	err := s.db.QueryRowContext(ctx, `
		SELECT title FROM roulette_winners WHERE chat_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, chatID).Scan(&title)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query last title: %w", err)
	}
	return title, nil
}

func (s *Store) Participants(ctx context.Context, chatID string) ([]Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, username, registered_at FROM roulette_participants
		WHERE chat_id = ? ORDER BY registered_at, user_id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var out []Participant
	for rows.Next() {
		var (
			p        Participant
			username sql.NullString
			regMs    int64
		)
		if err := rows.Scan(&p.UserID, &username, &regMs); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.ChatID = chatID
		p.Username = username.String
		p.RegisteredAt = time.UnixMilli(regMs)
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertParticipant registers p, or refreshes the cached username of an existing
// member. created is true only for a new registration.
func (s *Store) UpsertParticipant(ctx context.Context, p Participant) (created bool, err error) {
	if p.RegisteredAt.IsZero() {
		p.RegisteredAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO roulette_participants (chat_id, user_id, username, registered_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id, user_id) DO NOTHING`,
		p.ChatID, p.UserID, nullString(p.Username), p.RegisteredAt.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("insert participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	if p.Username != "" {
		_, err = s.db.ExecContext(ctx, `
			UPDATE roulette_participants SET username = ?
			WHERE chat_id = ? AND user_id = ?`, p.Username, p.ChatID, p.UserID)
		if err != nil {
			return false, fmt.Errorf("update participant: %w", err)
		}
	}
	return false, nil
}

// DeleteParticipant reports whether a row was removed.
func (s *Store) DeleteParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM roulette_participants WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return false, fmt.Errorf("delete participant: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CountParticipants counts members whose username does not look like a bot account.
func (s *Store) CountParticipants(ctx context.Context, chatID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM roulette_participants
		WHERE chat_id = ? AND LOWER(COALESCE(username, '')) NOT LIKE '%bot'`, chatID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return n, nil
}

// TitleLeaders returns, per title code, the user with the most wins on or after
// sinceDay (YYYY-MM-DD). An empty sinceDay covers all time.
func (s *Store) TitleLeaders(ctx context.Context, chatID, sinceDay string) ([]TitleLeader, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title_code, user_id, COALESCE(MAX(username), ''), COUNT(*) AS cnt
		FROM roulette_winners
		WHERE chat_id = ? AND (? = '' OR won_at >= ?)
		GROUP BY title_code, user_id
		ORDER BY title_code, cnt DESC, MIN(created_at)`, chatID, sinceDay, sinceDay)
	if err != nil {
		return nil, fmt.Errorf("query title leaders: %w", err)
	}
	defer rows.Close()

	var out []TitleLeader
	for rows.Next() {
		var l TitleLeader
		if err := rows.Scan(&l.TitleCode, &l.UserID, &l.Username, &l.Count); err != nil {
			return nil, fmt.Errorf("scan title leader: %w", err)
		}
		if n := len(out); n > 0 && out[n-1].TitleCode == l.TitleCode {
			continue
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
