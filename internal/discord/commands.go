package discord

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/keshon/gremlin/internal/config"
	"github.com/keshon/gremlin/internal/quota"
	"github.com/keshon/gremlin/pkg/cmd"
)

// buildRegistry registers the text commands. History is the outermost
// middleware so refused attempts are recorded too.
func (b *Bot) buildRegistry() *cmd.Registry {
	r := cmd.NewRegistry()
	history := withHistory(b.storage, func(err error) {
		b.log.Warn().Err(err).Msg("append command history")
	})

	r.Register(&rollCommand{b}, history, withGroupOnly())
	r.Register(&regCommand{b}, history, withGroupOnly())
	r.Register(&unregCommand{b}, history, withGroupOnly())
	r.Register(&rollStatsCommand{b}, history, withGroupOnly())
	r.Register(&rollTitleCommand{b}, history, withGroupOnly(), withManagerOnly())
	r.Register(&rollResetCommand{b}, history, withGroupOnly(), withManagerOnly())
	r.Register(&summaryCommand{b}, history)
	r.Register(&setCommand{b}, history, withManagerOnly())
	r.Register(&usageCommand{b}, history)
	r.Register(&helpCommand{r}, history)
	return r
}

type rollCommand struct{ b *Bot }

func (c *rollCommand) Name() string        { return "roll" }
func (c *rollCommand) Description() string { return "Draw today's roulette title" }
func (c *rollCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := messageContext(inv)
	if err != nil {
		return err
	}
	res, err := c.b.roulette.Roll(ctx, mc.ChatID, mc.Username, false)
	if err != nil {
		return err
	}
	if !res.Success {
		return mc.Reply(ctx, res.Message)
	}
	return nil
}

type regCommand struct{ b *Bot }

func (c *regCommand) Name() string        { return "reg" }
func (c *regCommand) Description() string { return "Join the roulette" }
func (c *regCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := messageContext(inv)
	if err != nil {
		return err
	}
	added, size, err := c.b.roulette.Register(ctx, mc.ChatID, mc.UserID, mc.Username)
	if err != nil {
		return err
	}
	if added {
		return mc.Reply(ctx, fmt.Sprintf("You're in the roulette! Participants: %d", size))
	}
	return mc.Reply(ctx, fmt.Sprintf("You're already registered. Participants: %d", size))
}

type unregCommand struct{ b *Bot }

func (c *unregCommand) Name() string        { return "unreg" }
func (c *unregCommand) Description() string { return "Leave the roulette" }
func (c *unregCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := messageContext(inv)
	if err != nil {
		return err
	}
	removed, size, err := c.b.roulette.Unregister(ctx, mc.ChatID, mc.UserID)
	if err != nil {
		return err
	}
	if removed {
		return mc.Reply(ctx, fmt.Sprintf("You left the roulette. Participants: %d", size))
	}
	return mc.Reply(ctx, fmt.Sprintf("You weren't registered. Participants: %d", size))
}

type rollStatsCommand struct{ b *Bot }

func (c *rollStatsCommand) Name() string        { return "rollstats" }
func (c *rollStatsCommand) Description() string { return "Roulette leaderboard" }
func (c *rollStatsCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := messageContext(inv)
	if err != nil {
		return err
	}
	text, err := c.b.roulette.Stats(ctx, mc.ChatID)
	if err != nil {
		return err
	}
	return mc.Reply(ctx, text)
}

type rollTitleCommand struct{ b *Bot }

func (c *rollTitleCommand) Name() string { return "rolltitle" }
func (c *rollTitleCommand) Description() string {
	return "Set a custom roulette title, or `reset` to use the built-in ones"
}
func (c *rollTitleCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := messageContext(inv)
	if err != nil {
		return err
	}
	title := strings.TrimSpace(inv.Raw)
	switch {
	case title == "":
		return mc.Reply(ctx, "Usage: !rolltitle <title> or !rolltitle reset")
	case strings.EqualFold(title, "reset"):
		if err := c.b.storage.SetChatSetting(mc.ChatID, config.KeyRouletteCustomTitle, nil); err != nil {
			return err
		}
		return mc.Reply(ctx, "Custom title removed, back to the built-in titles.")
	}
	if err := c.b.storage.SetChatSetting(mc.ChatID, config.KeyRouletteCustomTitle, title); err != nil {
		return err
	}
	return mc.Reply(ctx, fmt.Sprintf("From now on the roulette title is «%s».", title))
}

type rollResetCommand struct{ b *Bot }

func (c *rollResetCommand) Name() string        { return "rollreset" }
func (c *rollResetCommand) Description() string { return "Clear today's roulette winner" }
func (c *rollResetCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := messageContext(inv)
	if err != nil {
		return err
	}
	n, err := c.b.roulette.ResetDailyWinner(ctx, mc.ChatID)
	if err != nil {
		return err
	}
	if n == 0 {
		return mc.Reply(ctx, "Nobody has won today yet.")
	}
	return mc.Reply(ctx, "Today's winner cleared. You can roll once more.")
}

type summaryCommand struct{ b *Bot }

func (c *summaryCommand) Name() string        { return "summary" }
func (c *summaryCommand) Description() string { return "Retell the recent conversation" }
func (c *summaryCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := messageContext(inv)
	if err != nil {
		return err
	}
	c.b.engine.Summarize(ctx, mc.ChatID, mc.MessageID)
	return nil
}

type setCommand struct{ b *Bot }

func (c *setCommand) Name() string        { return "set" }
func (c *setCommand) Description() string { return "Change a chat setting: !set <key> <value|reset>" }
func (c *setCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := messageContext(inv)
	if err != nil {
		return err
	}
	if len(inv.Args) < 2 {
		return mc.Reply(ctx, "Usage: !set <key> <value|reset>\nKeys: "+strings.Join(config.ChatKeys, ", "))
	}
	key := strings.ToLower(inv.Args[0])
	if key == config.KeyRouletteCustomTitle || !slices.Contains(config.ChatKeys, key) {
		return mc.Reply(ctx, fmt.Sprintf("Unknown setting %q.", key))
	}
	value, err := config.ParseValue(strings.TrimSpace(strings.TrimPrefix(inv.Raw, inv.Args[0])))
	if err != nil {
		return mc.Reply(ctx, err.Error())
	}
	if key == config.KeyStyle && value != nil && c.b.personas != nil {
		if code, _ := value.(string); !c.b.personas.Has(code) {
			return mc.Reply(ctx, fmt.Sprintf("Unknown style %v.", value))
		}
	}
	if err := c.b.storage.SetChatSetting(mc.ChatID, key, value); err != nil {
		return err
	}
	if value == nil {
		return mc.Reply(ctx, fmt.Sprintf("%s reset to default.", key))
	}
	return mc.Reply(ctx, fmt.Sprintf("%s = %v", key, value))
}

type usageCommand struct{ b *Bot }

func (c *usageCommand) Name() string        { return "usage" }
func (c *usageCommand) Description() string { return "Today's generation usage in this chat" }
func (c *usageCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := messageContext(inv)
	if err != nil {
		return err
	}
	conf, err := c.b.storage.ChatConfig(ctx, mc.ChatID)
	if err != nil {
		return err
	}
	llm, err := c.b.ledger.Usage(ctx, mc.ChatID, quota.PrefixLLM)
	if err != nil {
		return err
	}
	summary, err := c.b.ledger.Usage(ctx, mc.ChatID, quota.PrefixSummary)
	if err != nil {
		return err
	}
	return mc.Reply(ctx, fmt.Sprintf("Usage today\nreplies: %s\nsummaries: %s",
		formatUsage(llm, conf.LLMDailyLimit), formatUsage(summary, conf.SummaryDailyLimit)))
}

func formatUsage(used int64, limit int) string {
	if limit <= 0 {
		return fmt.Sprintf("%d (unlimited)", used)
	}
	return fmt.Sprintf("%d/%d", used, limit)
}

type helpCommand struct{ r *cmd.Registry }

func (c *helpCommand) Name() string        { return "help" }
func (c *helpCommand) Description() string { return "List commands" }
func (c *helpCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := messageContext(inv)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, command := range c.r.GetAll() {
		fmt.Fprintf(&b, "%s%s: %s\n", CommandPrefix, command.Name(), command.Description())
	}
	return mc.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}
