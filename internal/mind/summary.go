package mind

import (
	"context"
	"fmt"

	"github.com/keshon/gremlin/internal/ai"
	"github.com/keshon/gremlin/internal/quota"
)

const summaryPrompt = `You are %s. Your job is to retell the latest part of the chat (the context below) in a way that fits your character.

Do not write a dry report. Make it a lively and, above all, short story where the relationships between the participants come through.
The goal: someone who has not read the chat for a while understands who talked to whom, what they argued about and how it ended, without getting tired of reading.

Format:
1. A short intro: the mood of the chat (calm, toxic, fun and so on).
2. The main part: who said what, the key topics.
3. The finale: a moral, a joke, a conclusion or a sharp closing line in your style.

Do not invent facts; use only what is in the context, though hyperbole and stylistic framing are fine.
Avoid repetition and filler. Mention the participants by name. Plain text only, no Markdown.`

// SummaryTokens returns the answer budget for a summary: half the prompt budget
// clamped to 200..1024, further capped by maxLength when positive.
func SummaryTokens(promptTokens, maxLength int) int {
	n := min(max(promptTokens/2, 200), 1024)
	if maxLength > 0 && maxLength < n {
		n = maxLength
	}
	return n
}

// Summarize retells the recent history of a chat. Only one summary per chat runs
// at a time; a second request is refused immediately.
func (e *Engine) Summarize(ctx context.Context, chatID, replyTo string) Outcome {
	reqID := newReqID()

	conf, err := e.settings.ChatConfig(ctx, chatID)
	if err != nil {
		e.log.Error().Err(err).Str("req", reqID).Str("chat", chatID).Msg("chat config")
		e.send(ctx, reqID, chatID, e.notices.GeneratorFailed, replyTo)
		return Outcome{Action: ActionNotice, Reason: ReasonStore, Text: e.notices.GeneratorFailed}
	}
	if !conf.IsActive {
		e.send(ctx, reqID, chatID, e.notices.Inactive, replyTo)
		return Outcome{Action: ActionNotice, Reason: ReasonInactive, Text: e.notices.Inactive}
	}

	release, err := e.guard.TryAcquire(chatID)
	if err != nil {
		e.send(ctx, reqID, chatID, e.notices.SummaryBusy, replyTo)
		return Outcome{Action: ActionNotice, Reason: ReasonBusy, Text: e.notices.SummaryBusy}
	}
	defer release()

	turns, err := e.turns.RecentTurns(ctx, chatID, conf.ContextMaxTurns)
	if err != nil {
		e.log.Error().Err(err).Str("req", reqID).Str("chat", chatID).Msg("read turns")
		e.send(ctx, reqID, chatID, e.notices.GeneratorFailed, replyTo)
		return Outcome{Action: ActionNotice, Reason: ReasonStore, Text: e.notices.GeneratorFailed}
	}
	if len(turns) == 0 {
		e.send(ctx, reqID, chatID, e.notices.SummaryEmpty, replyTo)
		return Outcome{Action: ActionNotice, Reason: ReasonEmptyHistory, Text: e.notices.SummaryEmpty}
	}

	allowed, consumed := e.consume(ctx, reqID, chatID, quota.PrefixSummary, conf.SummaryDailyLimit)
	if !allowed {
		e.send(ctx, reqID, chatID, e.notices.QuotaExceeded, replyTo)
		return Outcome{Action: ActionNotice, Reason: ReasonQuota, Text: e.notices.QuotaExceeded}
	}

	style := e.style(conf)
	system := fmt.Sprintf(summaryPrompt, style.Name)
	if style.Prompt != "" {
		system += "\n\n" + style.Prompt
	}
	in := AssembleInput{
		SystemPrompt: system,
		Turns:        turns,
		MaxTurns:     conf.ContextMaxTurns,
		MaxTokens:    conf.ContextMaxPromptTokens,
		ClosingText: fmt.Sprintf("Write one coherent summary of the last %d chat messages. "+
			"Remember the format: intro, main part, finale.", len(turns)),
	}

	res, _ := e.generate(ctx, reqID, "summary", chatID, conf, in, SummaryTokens(conf.ContextMaxPromptTokens, conf.MaxLength))

	var notice string
	switch res.Kind {
	case ai.KindOK:
		if text := e.moderate(conf, res.Text); text != "" {
			full := fmt.Sprintf("**Chat summary of the last %d messages**\n\n%s", len(turns), text)
			e.send(ctx, reqID, chatID, full, replyTo)
			return Outcome{Action: ActionReplied, Text: full}
		}
		notice = e.notices.EmptyOutput
	case ai.KindRateLimited:
		notice = e.notices.rateLimited(res.RetryAfter)
	case ai.KindEmptyOutput:
		notice = e.notices.EmptyOutput
	default:
		notice = e.notices.GeneratorFailed
	}
	e.refund(ctx, reqID, chatID, quota.PrefixSummary, consumed)
	e.send(ctx, reqID, chatID, notice, replyTo)
	return Outcome{Action: ActionNotice, Reason: ReasonGenerator, Text: notice}
}
