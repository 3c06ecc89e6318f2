package quota

import (
	"context"
	"fmt"
	"time"
)

// Mark kinds.
const (
	MarkInterject = "interject"
	MarkRevive    = "revive"
)

// Marks stores the time an action last happened in a chat.
type Marks struct {
	backend Backend
}

func NewMarks(backend Backend) *Marks {
	return &Marks{backend: backend}
}

func markKey(kind, chatID string) string {
	return fmt.Sprintf("mark:%s:%s", kind, chatID)
}

// Last returns the zero time when no mark exists.
func (m *Marks) Last(ctx context.Context, kind, chatID string) (time.Time, error) {
	vals, err := m.backend.MGet(ctx, []string{markKey(kind, chatID)})
	if err != nil {
		return time.Time{}, err
	}
	if vals[0] <= 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(vals[0]), nil
}

// Stamp records at; ttl <= 0 keeps the mark forever.
func (m *Marks) Stamp(ctx context.Context, kind, chatID string, at time.Time, ttl time.Duration) error {
	return m.backend.Set(ctx, markKey(kind, chatID), at.UnixMilli(), ttl)
}

// Within reports whether the last mark is younger than window.
func (m *Marks) Within(ctx context.Context, kind, chatID string, now time.Time, window time.Duration) (bool, error) {
	last, err := m.Last(ctx, kind, chatID)
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return false, nil
	}
	return now.Sub(last) < window, nil
}
