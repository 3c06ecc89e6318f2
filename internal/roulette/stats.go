package roulette

import (
	"context"
	"fmt"
	"strings"

	"github.com/keshon/gremlin/internal/store"
	"github.com/keshon/gremlin/pkg/util"
)

// Stats renders the chat's roulette leaderboard: the current title, then the
// top holder of each title this month and over all time.
func (s *Scheduler) Stats(ctx context.Context, chatID string) (string, error) {
	conf, err := s.settings.ChatConfig(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("chat config: %w", err)
	}
	monthly, err := s.store.TitleLeaders(ctx, chatID, util.MonthStart(s.now(), s.loc))
	if err != nil {
		return "", err
	}
	overall, err := s.store.TitleLeaders(ctx, chatID, "")
	if err != nil {
		return "", err
	}
	current, err := s.store.LastTitle(ctx, chatID)
	if err != nil {
		return "", err
	}
	if current == "" {
		current = conf.RouletteCustomTitle
	}
	if current == "" {
		labels := make([]string, len(Titles))
		for i, t := range Titles {
			labels[i] = t.Label
		}
		current = strings.Join(labels, "/")
	}

	var b strings.Builder
	b.WriteString("🏅 Roulette results\n")
	b.WriteString("Current title: " + current + "\n")
	writeLeaders(&b, "This month:", monthly, conf.RouletteCustomTitle)
	writeLeaders(&b, "All time:", overall, conf.RouletteCustomTitle)
	return strings.TrimRight(b.String(), "\n"), nil
}

func writeLeaders(b *strings.Builder, header string, leaders []store.TitleLeader, custom string) {
	b.WriteString("\n" + header + "\n")
	if len(leaders) == 0 {
		b.WriteString("nothing yet\n")
		return
	}
	for _, l := range leaders {
		who := "ID " + l.UserID
		if l.Username != "" {
			who = "@" + l.Username
		}
		fmt.Fprintf(b, "• %s: %s, %d\n", titleLabel(l.TitleCode, custom), who, l.Count)
	}
}
