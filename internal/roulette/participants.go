package roulette

import (
	"context"
	"strings"

	"github.com/keshon/gremlin/internal/store"
)

func looksLikeBot(username string) bool {
	return strings.HasSuffix(strings.ToLower(username), "bot")
}

// Register adds a user to the chat's roster. Registering twice only refreshes
// the cached username. Accounts named like bots are refused.
func (s *Scheduler) Register(ctx context.Context, chatID, userID, username string) (changed bool, size int, err error) {
	if !looksLikeBot(username) {
		changed, err = s.store.UpsertParticipant(ctx, store.Participant{
			ChatID:       chatID,
			UserID:       userID,
			Username:     username,
			RegisteredAt: s.now(),
		})
		if err != nil {
			return false, 0, err
		}
	}
	size, err = s.store.CountParticipants(ctx, chatID)
	return changed, size, err
}

// Unregister removes a user from the roster; removing a non-member is a no-op.
func (s *Scheduler) Unregister(ctx context.Context, chatID, userID string) (changed bool, size int, err error) {
	changed, err = s.store.DeleteParticipant(ctx, chatID, userID)
	if err != nil {
		return false, 0, err
	}
	size, err = s.store.CountParticipants(ctx, chatID)
	return changed, size, err
}
