package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecentTurns_OrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC)

	msgs := []Message{
		{MessageID: "1", UserID: "u1", Username: "ann", Text: "first"},
		{MessageID: "2", UserID: "u2", Text: "second"},
		{MessageID: "3", UserID: "bot", Username: "gremlin", Text: "third", IsBot: true},
		{MessageID: "4", UserID: "u1", Username: "ann", Text: "fourth"},
	}
	for i, m := range msgs {
		m.ChatID = "c1"
		m.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.RecordMessage(ctx, m); err != nil {
			t.Fatalf("RecordMessage %d: %v", i, err)
		}
	}

	turns, err := s.RecentTurns(ctx, "c1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 3 {
		t.Fatalf("len = %d, want 3", len(turns))
	}
	if turns[0].Text != "second" || turns[0].Speaker != "u2" {
		t.Fatalf("turns[0] = %+v", turns[0])
	}
	if !turns[1].IsAutomated || turns[1].Speaker != "gremlin" {
		t.Fatalf("turns[1] = %+v", turns[1])
	}
	if turns[2].Text != "fourth" {
		t.Fatalf("turns[2] = %+v", turns[2])
	}

	last, err := s.LastHumanMessageAt(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if !last.Equal(base.Add(3 * time.Minute)) {
		t.Fatalf("LastHumanMessageAt = %v", last)
	}

	err = s.RecordMessage(ctx, Message{ChatID: "c1", MessageID: "4", UserID: "u1", Text: "again"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate insert err = %v, want ErrDuplicate", err)
	}
}

func TestLastHumanMessageAt_Empty(t *testing.T) {
	s := openTestStore(t)
	last, err := s.LastHumanMessageAt(context.Background(), "nobody")
	if err != nil || !last.IsZero() {
		t.Fatalf("LastHumanMessageAt = %v, %v", last, err)
	}
}

func TestParticipants_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.UpsertParticipant(ctx, Participant{ChatID: "c1", UserID: "u1", Username: "ann"})
	if err != nil || !created {
		t.Fatalf("first upsert = %v, %v", created, err)
	}
	created, err = s.UpsertParticipant(ctx, Participant{ChatID: "c1", UserID: "u1", Username: "anna"})
	if err != nil || created {
		t.Fatalf("second upsert = %v, %v", created, err)
	}
	if n, _ := s.CountParticipants(ctx, "c1"); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	ps, _ := s.Participants(ctx, "c1")
	if len(ps) != 1 || ps[0].Username != "anna" {
		t.Fatalf("participants = %+v", ps)
	}

	s.UpsertParticipant(ctx, Participant{ChatID: "c1", UserID: "u9", Username: "HelperBot"})
	if n, _ := s.CountParticipants(ctx, "c1"); n != 1 {
		t.Fatalf("bot-named member counted: %d", n)
	}

	removed, _ := s.DeleteParticipant(ctx, "c1", "u1")
	if !removed {
		t.Fatalf("expected removal")
	}
	removed, _ = s.DeleteParticipant(ctx, "c1", "u1")
	if removed {
		t.Fatalf("second removal should be a no-op")
	}
}

func TestWinners_DayScopedAndLeaders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	add := func(chat, user, name, code, day string) {
		t.Helper()
		if err := s.InsertWinner(ctx, Winner{ChatID: chat, UserID: user, Username: name, TitleCode: code, Title: code, WonAt: day}); err != nil {
			t.Fatal(err)
		}
	}
	add("c1", "u1", "ann", "clown", "2025-09-20")
	add("c1", "u1", "ann", "clown", "2025-10-01")
	add("c1", "u2", "bob", "clown", "2025-10-02")
	add("c1", "u2", "bob", "clown", "2025-10-03")
	add("c1", "u2", "bob", "jester", "2025-10-04")
	add("c2", "u3", "cat", "clown", "2025-10-04")

	if ok, _ := s.HasWinner(ctx, "c1", "2025-10-04"); !ok {
		t.Fatalf("HasWinner should be true")
	}

	month, err := s.TitleLeaders(ctx, "c1", "2025-10-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(month) != 2 || month[0].TitleCode != "clown" || month[0].UserID != "u2" || month[0].Count != 2 {
		t.Fatalf("month leaders = %+v", month)
	}

	all, _ := s.TitleLeaders(ctx, "c1", "")
	if all[0].Count != 2 {
		t.Fatalf("all-time leaders = %+v", all)
	}

	n, err := s.DeleteWinners(ctx, "c1", "2025-10-04")
	if err != nil || n != 1 {
		t.Fatalf("DeleteWinners = %d, %v", n, err)
	}
	if ok, _ := s.HasWinner(ctx, "c2", "2025-10-04"); !ok {
		t.Fatalf("reset must not touch other chats")
	}
	if ok, _ := s.HasWinner(ctx, "c1", "2025-10-03"); !ok {
		t.Fatalf("reset must not touch other days")
	}
}
