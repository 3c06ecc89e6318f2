package mind

import (
	"context"
	"fmt"

	"github.com/keshon/gremlin/internal/quota"
	"github.com/keshon/gremlin/internal/storage"
	"github.com/keshon/gremlin/pkg/util"
)

// OnIdleTick checks every active group chat for revival. Chats are processed in
// parallel and one chat's failure never stops the others.
func (e *Engine) OnIdleTick(ctx context.Context) error {
	chats, err := e.settings.ActiveChats(ctx)
	if err != nil {
		return fmt.Errorf("list active chats: %w", err)
	}
	groups := chats[:0:0]
	for _, c := range chats {
		if c.Kind == storage.KindGroup {
			groups = append(groups, c)
		}
	}

	util.ForEach(ctx, groups, e.workers, func(ctx context.Context, c storage.Chat) error {
		_, err := e.ReviveChat(ctx, c.ID)
		return err
	}, func(c storage.Chat, err error) {
		e.log.Warn().Err(err).Str("chat", c.ID).Msg("idle revival failed")
	})
	return nil
}

// ReviveChat sends a revival message to one chat if it has been quiet long enough.
func (e *Engine) ReviveChat(ctx context.Context, chatID string) (Outcome, error) {
	conf, err := e.settings.ChatConfig(ctx, chatID)
	if err != nil {
		return skip(ReasonStore), fmt.Errorf("chat config: %w", err)
	}
	if !conf.IsActive {
		return skip(ReasonInactive), nil
	}
	if !conf.ReviveEnabled {
		return skip(ReasonDisabled), nil
	}

	now := e.now()
	threshold := conf.ReviveThreshold()

	last, err := e.turns.LastHumanMessageAt(ctx, chatID)
	if err != nil {
		return skip(ReasonStore), fmt.Errorf("last message: %w", err)
	}
	if last.IsZero() || now.Sub(last) < threshold {
		return skip(ReasonCooldown), nil
	}

	if e.marks != nil {
		lastRevive, err := e.marks.Last(ctx, quota.MarkRevive, chatID)
		if err != nil {
			return skip(ReasonStore), fmt.Errorf("revive mark: %w", err)
		}
		if cooldownActive(lastRevive, now, threshold) {
			return skip(ReasonCooldown), nil
		}
	}

	reqID := newReqID()
	allowed, consumed := e.consume(ctx, reqID, chatID, quota.PrefixLLM, conf.LLMDailyLimit)
	if !allowed {
		return skip(ReasonQuota), nil
	}

	limit := min(conf.ContextMaxTurns, reviveMaxTurns)
	in := AssembleInput{
		SystemPrompt: BuildSystemPrompt(conf, e.style(conf), ""),
		Turns:        e.loadTurns(ctx, reqID, chatID, limit),
		MaxTurns:     limit,
		MaxTokens:    conf.ContextMaxPromptTokens,
		ClosingText:  reviveDirective,
	}
	res, _ := e.generate(ctx, reqID, "revive", chatID, conf, in, conf.MaxLength)
	text := ""
	if res.OK() {
		text = e.moderate(conf, res.Text)
	}
	if text == "" {
		e.refund(ctx, reqID, chatID, quota.PrefixLLM, consumed)
		if res.Err != nil {
			return skip(ReasonGenerator), res.Err
		}
		return skip(ReasonGenerator), fmt.Errorf("revive: %s", res.Kind)
	}

	if err := e.sender.Send(ctx, chatID, text, ""); err != nil {
		return skip(ReasonGenerator), fmt.Errorf("send revival: %w", err)
	}
	if e.marks != nil {
		if err := e.marks.Stamp(ctx, quota.MarkRevive, chatID, now, threshold); err != nil {
			e.log.Error().Err(err).Str("req", reqID).Str("chat", chatID).Msg("stamp revive mark")
		}
	}
	e.log.Info().Str("req", reqID).Str("chat", chatID).Dur("idle", now.Sub(last)).Msg("chat revived")
	return Outcome{Action: ActionRevived, Text: text}, nil
}
