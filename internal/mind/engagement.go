package mind

import (
	"context"
	"strings"

	"github.com/keshon/gremlin/internal/ai"
	"github.com/keshon/gremlin/internal/config"
	"github.com/keshon/gremlin/internal/quota"
)

// OnIncomingMessage handles one inbound message: a reply when the bot is
// addressed, otherwise a possible spontaneous interjection. turns may be nil, in
// which case history is read from the TurnStore only if the bot speaks.
func (e *Engine) OnIncomingMessage(ctx context.Context, msg IncomingMessage, conf config.ChatConfig, turns []ChatTurn) Outcome {
	if !conf.IsActive {
		return skip(ReasonInactive)
	}
	if msg.IsBot {
		return skip(ReasonAutomated)
	}
	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, "/") || strings.HasPrefix(text, "!") {
		return skip(ReasonCommand)
	}

	reqID := newReqID()
	if msg.Addressed {
		return e.reply(ctx, reqID, msg, conf, turns)
	}
	return e.interject(ctx, reqID, msg, conf, turns)
}

func (e *Engine) reply(ctx context.Context, reqID string, msg IncomingMessage, conf config.ChatConfig, turns []ChatTurn) Outcome {
	allowed, consumed := e.consume(ctx, reqID, msg.ChatID, quota.PrefixLLM, conf.LLMDailyLimit)
	if !allowed {
		e.send(ctx, reqID, msg.ChatID, e.notices.QuotaExceeded, msg.MessageID)
		return Outcome{Action: ActionNotice, Reason: ReasonQuota, Text: e.notices.QuotaExceeded}
	}

	if turns == nil {
		turns = e.loadTurns(ctx, reqID, msg.ChatID, conf.ContextMaxTurns)
	}
	if len(turns) == 0 || turns[len(turns)-1].Text != msg.Text {
		turns = append(append([]ChatTurn(nil), turns...), ChatTurn{Speaker: msg.Username, Text: msg.Text})
	}

	system := BuildSystemPrompt(conf, e.style(conf), msg.Text)
	in := AssembleInput{
		SystemPrompt:    system,
		Turns:           turns,
		MaxTurns:        conf.ContextMaxTurns,
		MaxTokens:       conf.ContextMaxPromptTokens,
		ExtractQuestion: true,
	}

	res, _ := e.generate(ctx, reqID, "reply", msg.ChatID, conf, in, conf.MaxLength)
	if res.Kind == ai.KindEmptyOutput {
		in.MaxTurns = max(in.MaxTurns/2, 1)
		in.MaxTokens /= 2
		res, _ = e.generate(ctx, reqID, "reply_retry", msg.ChatID, conf, in, conf.MaxLength)
	}

	var notice string
	switch res.Kind {
	case ai.KindOK:
		if text := e.moderate(conf, res.Text); text != "" {
			e.send(ctx, reqID, msg.ChatID, text, msg.MessageID)
			return Outcome{Action: ActionReplied, Text: text}
		}
		notice = e.notices.EmptyOutput
	case ai.KindRateLimited:
		notice = e.notices.rateLimited(res.RetryAfter)
	case ai.KindEmptyOutput:
		notice = e.notices.EmptyOutput
	default:
		notice = e.notices.GeneratorFailed
	}

	e.refund(ctx, reqID, msg.ChatID, quota.PrefixLLM, consumed)
	e.send(ctx, reqID, msg.ChatID, notice, msg.MessageID)
	return Outcome{Action: ActionNotice, Reason: ReasonGenerator, Text: notice}
}

func (e *Engine) interject(ctx context.Context, reqID string, msg IncomingMessage, conf config.ChatConfig, turns []ChatTurn) Outcome {
	if conf.InterjectP <= 0 {
		return skip(ReasonDisabled)
	}

	now := e.now()
	quiet, err := ParseQuietHours(conf.QuietHours)
	if err != nil {
		e.log.Warn().Err(err).Str("chat", msg.ChatID).Msg("ignoring quiet hours")
	}
	if quiet.Contains(now.In(e.loc)) {
		return skip(ReasonQuietHours)
	}

	if e.marks != nil {
		last, err := e.marks.Last(ctx, quota.MarkInterject, msg.ChatID)
		if err != nil {
			e.log.Error().Err(err).Str("req", reqID).Str("chat", msg.ChatID).Msg("read interject mark")
			return skip(ReasonStore)
		}
		if cooldownActive(last, now, conf.CooldownDuration()) {
			return skip(ReasonCooldown)
		}
	}

	if !passesDice(e.rnd, conf.InterjectP) {
		return skip(ReasonDice)
	}

	allowed, consumed := e.consume(ctx, reqID, msg.ChatID, quota.PrefixLLM, conf.LLMDailyLimit)
	if !allowed {
		return skip(ReasonQuota)
	}

	if turns == nil {
		turns = e.loadTurns(ctx, reqID, msg.ChatID, conf.ContextMaxTurns)
	}

	in := AssembleInput{
		SystemPrompt: BuildSystemPrompt(conf, e.style(conf), ""),
		Turns:        turns,
		MaxTurns:     conf.ContextMaxTurns,
		MaxTokens:    conf.ContextMaxPromptTokens,
		ClosingText:  interjectDirective,
	}
	res, _ := e.generate(ctx, reqID, "interject", msg.ChatID, conf, in, conf.MaxLength)
	text := ""
	if res.OK() {
		text = e.moderate(conf, res.Text)
	}
	if text == "" {
		e.refund(ctx, reqID, msg.ChatID, quota.PrefixLLM, consumed)
		return skip(ReasonGenerator)
	}

	if !e.send(ctx, reqID, msg.ChatID, text, msg.MessageID) {
		return skip(ReasonGenerator)
	}
	if e.marks != nil {
		if err := e.marks.Stamp(ctx, quota.MarkInterject, msg.ChatID, now, conf.CooldownDuration()*2); err != nil {
			e.log.Error().Err(err).Str("req", reqID).Str("chat", msg.ChatID).Msg("stamp interject mark")
		}
	}
	return Outcome{Action: ActionInterjected, Text: text}
}
