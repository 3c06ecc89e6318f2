// cmd/discord/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/gremlin/internal/ai"
	"github.com/keshon/gremlin/internal/config"
	"github.com/keshon/gremlin/internal/discord"
	"github.com/keshon/gremlin/internal/logging"
	"github.com/keshon/gremlin/internal/mind"
	"github.com/keshon/gremlin/internal/moderation"
	"github.com/keshon/gremlin/internal/persona"
	"github.com/keshon/gremlin/internal/quota"
	"github.com/keshon/gremlin/internal/roulette"
	"github.com/keshon/gremlin/internal/storage"
	"github.com/keshon/gremlin/internal/store"
	"github.com/keshon/gremlin/pkg/jobmgr"
	"github.com/keshon/gremlin/pkg/util"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.New()
	log := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Pretty: cfg.LogPretty})
	log.Info().Str("bot", cfg.BotName).Msg("starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("timezone")
	}
	autoRollAt, err := util.ParseClock(cfg.AutoRollAt)
	if err != nil {
		log.Fatal().Err(err).Msg("AUTO_ROLL_AT")
	}

	settings, err := storage.New(cfg.StoragePath, logging.Component(log, "storage"))
	if err != nil {
		log.Fatal().Err(err).Msg("open settings storage")
	}
	defer settings.Close()

	db, err := store.Open(cfg.DatabasePath, logging.Component(log, "store"))
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	backend := quotaBackend(ctx, cfg, log)
	ledger := quota.NewLedger(backend, loc, logging.Component(log, "quota"))
	marks := quota.NewMarks(backend)

	personas, err := persona.Load(cfg.PersonaPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load personas")
	}

	provider := buildProvider(ctx, cfg, log)
	filter := moderation.New()

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Fatal().Err(err).Msg("create discord session")
	}
	sender := discord.NewSender(dg, logging.Component(log, "discord"))

	engine := mind.NewEngine(mind.Deps{
		Turns:     db,
		Provider:  provider,
		Ledger:    ledger,
		Marks:     marks,
		Moderator: filter,
		Settings:  settings,
		Sender:    sender,
		Personas:  personas,
		Location:  loc,
		Logger:    logging.Component(log, "mind"),
		BotName:   cfg.BotName,
		Workers:   cfg.SweepWorkers,
	})
	lottery := roulette.NewScheduler(roulette.Deps{
		Store:       db,
		Settings:    settings,
		Provider:    provider,
		Moderator:   filter,
		Personas:    personas,
		Announcer:   sender,
		Location:    loc,
		Logger:      logging.Component(log, "roulette"),
		BotName:     cfg.BotName,
		RevealDelay: cfg.RevealDelay,
		AutoRollAt:  autoRollAt,
		Workers:     cfg.SweepWorkers,
	})

	jobs := jobmgr.NewManager(func(msg string) {
		log.Debug().Str("component", "jobs").Msg(msg)
	})
	defer jobs.StopAll()
	if err := jobs.Every(ctx, "idle-tick", cfg.IdleTick, engine.OnIdleTick); err != nil {
		log.Fatal().Err(err).Msg("start idle tick")
	}
	if err := jobs.Every(ctx, "auto-roll", cfg.AutoRollTick, lottery.RunAutoRoll); err != nil {
		log.Fatal().Err(err).Msg("start auto-roll")
	}

	bot := discord.New(discord.Deps{
		Session:  dg,
		Sender:   sender,
		Storage:  settings,
		Store:    db,
		Engine:   engine,
		Roulette: lottery,
		Ledger:   ledger,
		Personas: personas,
		Logger:   logging.Component(log, "discord"),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := bot.Run(ctx); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("discord bot error")
		}
		cancel()
	case <-ctx.Done():
	}

	log.Info().Msg("discord bot exited cleanly")
}

func quotaBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) quota.Backend {
	if cfg.RedisAddr == "" {
		log.Warn().Msg("REDIS_ADDR not set, quotas are kept in memory")
		return quota.NewMemoryBackend()
	}
	client, err := quota.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("connect redis")
	}
	return quota.NewRedisBackend(client)
}

// buildProvider puts AI_PROVIDER first; with AI_FALLBACK the other backend
// follows it.
func buildProvider(ctx context.Context, cfg *config.Config, log zerolog.Logger) ai.Provider {
	var providers []ai.Provider
	if cfg.LLMAPIKey != "" || cfg.LLMBaseURL != "" {
		p, err := ai.NewEinoProvider(ctx, ai.EinoConfig{
			BaseURL: cfg.LLMBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
			Timeout: cfg.LLMTimeout,
		})
		if err != nil {
			log.Error().Err(err).Msg("openai-compatible provider disabled")
		} else {
			providers = append(providers, p)
		}
	}
	pollinations := ai.NewPollinationsProvider()
	if cfg.AIProvider == pollinations.Name() || len(providers) == 0 {
		providers = append([]ai.Provider{pollinations}, providers...)
	} else {
		providers = append(providers, pollinations)
	}
	if !cfg.AIFallback {
		providers = providers[:1]
	}
	log.Info().Str("primary", providers[0].Name()).Int("providers", len(providers)).Msg("ai providers ready")
	return ai.NewMultiProvider(providers...)
}
