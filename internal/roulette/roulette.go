// Package roulette runs the daily title lottery: one winner per chat per
// calendar day, announced in two phases.
package roulette

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/keshon/gremlin/internal/ai"
	"github.com/keshon/gremlin/internal/config"
	"github.com/keshon/gremlin/internal/mind"
	"github.com/keshon/gremlin/internal/persona"
	"github.com/keshon/gremlin/internal/storage"
	"github.com/keshon/gremlin/internal/store"
	"github.com/keshon/gremlin/pkg/util"
	"github.com/rs/zerolog"
)

// User-facing results of Roll.
const (
	MsgAlreadyRolled = "The roulette already ran today. Come back tomorrow!"
	MsgNobody        = "Nobody to draw. Register with !reg first."
	MsgInProgress    = "A roll is already in progress, hold on."
	MsgRevealFailed  = "Could not announce the winner, try again later."
	MsgDone          = "Roll complete!"
)

const defaultTeaserTokens = 200

// RollResult is what Roll reports back to the caller.
type RollResult struct {
	Success bool
	Message string
}

// Announcer delivers roulette messages to a chat.
type Announcer interface {
	Send(ctx context.Context, chatID, text, replyTo string) error
	// Mention renders a reference to the user that notifies them.
	Mention(userID, username string) string
}

// Deps wires a Scheduler.
type Deps struct {
	Store       *store.Store
	Settings    mind.SettingsProvider
	Provider    ai.Provider
	Moderator   mind.Moderator
	Personas    *persona.Catalog
	Announcer   Announcer
	Random      mind.RandomSource
	Location    *time.Location
	Logger      zerolog.Logger
	BotName     string
	RevealDelay time.Duration
	AutoRollAt  int // minutes since local midnight before which auto-roll waits
	Workers     int
}

type Scheduler struct {
	store       *store.Store
	settings    mind.SettingsProvider
	provider    ai.Provider
	moderator   mind.Moderator
	personas    *persona.Catalog
	announcer   Announcer
	rnd         mind.RandomSource
	loc         *time.Location
	log         zerolog.Logger
	botName     string
	revealDelay time.Duration
	autoRollAt  int
	workers     int

	guard *mind.Guard
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewScheduler(d Deps) *Scheduler {
	s := &Scheduler{
		store:       d.Store,
		settings:    d.Settings,
		provider:    d.Provider,
		moderator:   d.Moderator,
		personas:    d.Personas,
		announcer:   d.Announcer,
		rnd:         d.Random,
		loc:         d.Location,
		log:         d.Logger,
		botName:     d.BotName,
		revealDelay: d.RevealDelay,
		autoRollAt:  d.AutoRollAt,
		workers:     d.Workers,
		guard:       mind.NewGuard(),
		now:         time.Now,
		sleep:       sleepCtx,
	}
	if s.rnd == nil {
		s.rnd = mind.DefaultRandom
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.workers <= 0 {
		s.workers = 4
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Scheduler) today() string {
	return util.DayDate(s.now(), s.loc)
}

// Roll draws today's winner for a chat. Unless force is set a chat can roll once
// per day; a forced roll replaces today's winner.
func (s *Scheduler) Roll(ctx context.Context, chatID, initiator string, force bool) (RollResult, error) {
	release, err := s.guard.TryAcquire(chatID)
	if err != nil {
		return RollResult{Message: MsgInProgress}, nil
	}
	defer release()

	day := s.today()
	if !force {
		done, err := s.store.HasWinner(ctx, chatID, day)
		if err != nil {
			return RollResult{}, err
		}
		if done {
			return RollResult{Message: MsgAlreadyRolled}, nil
		}
	}

	participants, err := s.store.Participants(ctx, chatID)
	if err != nil {
		return RollResult{}, err
	}
	if len(participants) == 0 {
		return RollResult{Message: MsgNobody}, nil
	}

	conf, err := s.settings.ChatConfig(ctx, chatID)
	if err != nil {
		return RollResult{}, fmt.Errorf("chat config: %w", err)
	}

	winner := participants[s.rnd.Intn(len(participants))]
	title := pickTitle(conf.RouletteCustomTitle, s.rnd)

	teaser := s.teaser(ctx, chatID, conf, title)
	if err := s.announcer.Send(ctx, chatID, teaser, ""); err != nil {
		s.log.Warn().Err(err).Str("chat", chatID).Msg("send roulette teaser")
	}

	s.sleep(ctx, s.revealDelay)

	reveal := fmt.Sprintf("🏆 Title «%s» goes to %s!", title.Label, s.announcer.Mention(winner.UserID, winner.Username))
	if err := s.announcer.Send(ctx, chatID, reveal, ""); err != nil {
		s.log.Error().Err(err).Str("chat", chatID).Msg("send roulette reveal")
		return RollResult{Message: MsgRevealFailed}, nil
	}

	if force {
		if _, err := s.store.DeleteWinners(ctx, chatID, day); err != nil {
			return RollResult{}, err
		}
	}
	err = s.store.InsertWinner(ctx, store.Winner{
		ChatID:    chatID,
		UserID:    winner.UserID,
		Username:  winner.Username,
		TitleCode: title.Code,
		Title:     title.Label,
		WonAt:     day,
		CreatedAt: s.now(),
	})
	if err != nil {
		return RollResult{}, err
	}

	s.log.Info().
		Str("chat", chatID).
		Str("initiator", initiator).
		Str("winner", winner.UserID).
		Str("title", title.Code).
		Bool("force", force).
		Msg("roulette rolled")
	return RollResult{Success: true, Message: MsgDone}, nil
}

// teaser builds the first announcement. Generation is best effort: any failure
// leaves the bare headline.
func (s *Scheduler) teaser(ctx context.Context, chatID string, conf config.ChatConfig, title Title) string {
	headline := fmt.Sprintf("🎰 Today's title up for grabs: «%s»!", title.Label)
	if s.provider == nil {
		return headline
	}

	style := persona.Style{Code: conf.Style, Name: conf.Style}
	if s.personas != nil {
		style = s.personas.Get(conf.Style)
	}
	focus := fmt.Sprintf("We are about to announce who gets the title '%s'. Build up the intrigue but do not reveal the name.", title.Label)

	turns, err := s.store.RecentTurns(ctx, chatID, conf.ContextMaxTurns)
	if err != nil {
		s.log.Warn().Err(err).Str("chat", chatID).Msg("read turns for teaser")
	}
	plan := mind.Assemble(mind.AssembleInput{
		SystemPrompt: mind.BuildSystemPrompt(conf, style, focus),
		Turns:        turns,
		MaxTurns:     conf.ContextMaxTurns,
		MaxTokens:    conf.ContextMaxPromptTokens,
		ClosingText:  focus,
		BotName:      s.botName,
	})

	maxTokens := conf.MaxLength
	if maxTokens <= 0 {
		maxTokens = defaultTeaserTokens
	}
	res := ai.Call(ctx, s.provider, plan.Messages(), ai.Options{
		Temperature: conf.Temperature,
		TopP:        conf.TopP,
		MaxTokens:   maxTokens,
		Provider:    conf.Provider,
		Fallback:    conf.Fallback,
	})
	if !res.OK() {
		s.log.Warn().Err(res.Err).Str("chat", chatID).Stringer("result", res.Kind).Msg("roulette teaser generation")
		return headline
	}

	intrigue := res.Text
	if s.moderator != nil {
		intrigue = s.moderator.Apply(intrigue, conf.Moderation)
	}
	if intrigue = strings.TrimSpace(intrigue); intrigue == "" {
		return headline
	}
	return headline + " " + intrigue
}

// ResetDailyWinner removes today's winner so the chat can roll once more.
func (s *Scheduler) ResetDailyWinner(ctx context.Context, chatID string) (int64, error) {
	n, err := s.store.DeleteWinners(ctx, chatID, s.today())
	if err != nil {
		return 0, err
	}
	s.log.Info().Str("chat", chatID).Int64("removed", n).Msg("roulette winner reset")
	return n, nil
}

// RunAutoRoll rolls every active chat with auto-roll enabled that has no winner
// yet today. It waits until the configured local time of day.
func (s *Scheduler) RunAutoRoll(ctx context.Context) error {
	now := s.now().In(s.loc)
	if now.Hour()*60+now.Minute() < s.autoRollAt {
		return nil
	}

	chats, err := s.settings.ActiveChats(ctx)
	if err != nil {
		return fmt.Errorf("list active chats: %w", err)
	}
	day := s.today()

	util.ForEach(ctx, chats, s.workers, func(ctx context.Context, c storage.Chat) error {
		conf, err := s.settings.ChatConfig(ctx, c.ID)
		if err != nil {
			return err
		}
		if !conf.RouletteAutoEnabled {
			return nil
		}
		done, err := s.store.HasWinner(ctx, c.ID, day)
		if err != nil || done {
			return err
		}
		n, err := s.store.CountParticipants(ctx, c.ID)
		if err != nil || n == 0 {
			return err
		}
		res, err := s.Roll(ctx, c.ID, "auto", false)
		if err != nil {
			return err
		}
		if !res.Success {
			s.log.Info().Str("chat", c.ID).Str("reason", res.Message).Msg("auto-roll skipped")
		}
		return nil
	}, func(c storage.Chat, err error) {
		s.log.Warn().Err(err).Str("chat", c.ID).Msg("auto-roll failed")
	})
	return nil
}
