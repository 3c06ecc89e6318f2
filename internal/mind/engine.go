package mind

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/keshon/gremlin/internal/ai"
	"github.com/keshon/gremlin/internal/config"
	"github.com/keshon/gremlin/internal/persona"
	"github.com/keshon/gremlin/internal/quota"
	"github.com/rs/zerolog"
)

const (
	reviveMaxTurns = 20

	interjectDirective = "Jump into the conversation with one short, fitting remark. Do not greet anyone."
	reviveDirective    = "The chat has gone quiet for a while. Start a new topic or poke the regulars to get the conversation going again. One message."
)

// Action is what the engine did with an event.
type Action string

const (
	ActionNone        Action = "none"
	ActionReplied     Action = "replied"
	ActionInterjected Action = "interjected"
	ActionRevived     Action = "revived"
	ActionNotice      Action = "notice"
)

// Outcome describes one engine decision. Reason is set when the engine did not speak.
type Outcome struct {
	Action Action
	Reason string
	Text   string
}

func skip(reason string) Outcome { return Outcome{Action: ActionNone, Reason: reason} }

// Deps wires an Engine.
type Deps struct {
	Turns     TurnStore
	Provider  ai.Provider
	Ledger    *quota.Ledger
	Marks     *quota.Marks
	Moderator Moderator
	Settings  SettingsProvider
	Sender    Sender
	Personas  *persona.Catalog
	Random    RandomSource
	Location  *time.Location
	Logger    zerolog.Logger
	BotName   string
	Workers   int
	Notices   *Notices
}

// Engine decides when the bot speaks in a chat and with what context.
type Engine struct {
	turns     TurnStore
	provider  ai.Provider
	ledger    *quota.Ledger
	marks     *quota.Marks
	moderator Moderator
	settings  SettingsProvider
	sender    Sender
	personas  *persona.Catalog
	rnd       RandomSource
	loc       *time.Location
	log       zerolog.Logger
	botName   string
	workers   int
	notices   Notices

	guard *Guard
	now   func() time.Time
}

func NewEngine(d Deps) *Engine {
	e := &Engine{
		turns:     d.Turns,
		provider:  d.Provider,
		ledger:    d.Ledger,
		marks:     d.Marks,
		moderator: d.Moderator,
		settings:  d.Settings,
		sender:    d.Sender,
		personas:  d.Personas,
		rnd:       d.Random,
		loc:       d.Location,
		log:       d.Logger,
		botName:   d.BotName,
		workers:   d.Workers,
		notices:   DefaultNotices(),
		guard:     NewGuard(),
		now:       time.Now,
	}
	if d.Notices != nil {
		e.notices = *d.Notices
	}
	if e.rnd == nil {
		e.rnd = DefaultRandom
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.workers <= 0 {
		e.workers = 4
	}
	if e.botName == "" {
		e.botName = "bot"
	}
	return e
}

func newReqID() string {
	return uuid.NewString()[:8]
}

func (e *Engine) style(conf config.ChatConfig) persona.Style {
	if e.personas == nil {
		return persona.Style{Code: conf.Style, Name: conf.Style}
	}
	return e.personas.Get(conf.Style)
}

func (e *Engine) genOptions(conf config.ChatConfig, maxTokens int) ai.Options {
	return ai.Options{
		Temperature: conf.Temperature,
		TopP:        conf.TopP,
		MaxTokens:   maxTokens,
		Provider:    conf.Provider,
		Fallback:    conf.Fallback,
	}
}

// generate assembles a plan and calls the provider once.
func (e *Engine) generate(ctx context.Context, reqID, action, chatID string, conf config.ChatConfig, in AssembleInput, maxAnswer int) (ai.Result, PromptPlan) {
	if in.BotName == "" {
		in.BotName = e.botName
	}
	plan := Assemble(in)
	msgs := plan.Messages()
	opts := e.genOptions(conf, maxAnswer)
	LogLLMCall(e.log, reqID, action, chatID, msgs, opts)

	started := e.now()
	res := ai.Call(ctx, e.provider, msgs, opts)
	ev := e.log.Info()
	if !res.OK() {
		ev = e.log.Warn().Err(res.Err)
	}
	ev.Str("req", reqID).
		Str("action", action).
		Str("chat", chatID).
		Int("history_lines", plan.HistoryLines).
		Stringer("result", res.Kind).
		Dur("took", e.now().Sub(started)).
		Msg("generation")
	return res, plan
}

// consume takes one unit from prefix when limit is positive. It fails closed:
// a ledger error is reported as not allowed.
func (e *Engine) consume(ctx context.Context, reqID, chatID, prefix string, limit int) (allowed bool, consumed bool) {
	if limit <= 0 || e.ledger == nil {
		return true, false
	}
	res, err := e.ledger.Consume(ctx, chatID, quota.Request{Prefix: prefix, Limit: int64(limit)})
	if err != nil {
		e.log.Error().Err(err).Str("req", reqID).Str("chat", chatID).Str("prefix", prefix).Msg("consume quota")
		return false, false
	}
	return res.Allowed, res.Allowed
}

func (e *Engine) refund(ctx context.Context, reqID, chatID, prefix string, consumed bool) {
	if !consumed {
		return
	}
	if err := e.ledger.Refund(ctx, chatID, prefix); err != nil {
		e.log.Error().Err(err).Str("req", reqID).Str("chat", chatID).Str("prefix", prefix).Msg("refund quota")
	}
}

func (e *Engine) send(ctx context.Context, reqID, chatID, text, replyTo string) bool {
	if err := e.sender.Send(ctx, chatID, text, replyTo); err != nil {
		e.log.Error().Err(err).Str("req", reqID).Str("chat", chatID).Msg("send")
		return false
	}
	return true
}

func (e *Engine) moderate(conf config.ChatConfig, text string) string {
	if e.moderator == nil {
		return text
	}
	return e.moderator.Apply(text, conf.Moderation)
}

func (e *Engine) loadTurns(ctx context.Context, reqID, chatID string, limit int) []ChatTurn {
	turns, err := e.turns.RecentTurns(ctx, chatID, limit)
	if err != nil {
		e.log.Warn().Err(err).Str("req", reqID).Str("chat", chatID).Msg("read turns")
		return nil
	}
	return turns
}
