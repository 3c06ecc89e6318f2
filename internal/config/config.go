// /internal/config/config.go
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

func init() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}
}

// Config is the process configuration read from the environment.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN"`
	BotName      string `env:"BOT_NAME" envDefault:"gremlin"`

	StoragePath  string `env:"STORAGE_PATH" envDefault:"data/datastore.json"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"data/gremlin.db"`
	PersonaPath  string `env:"PERSONA_PATH"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	Timezone string `env:"TIMEZONE" envDefault:"UTC"`

	AIProvider string        `env:"AI_PROVIDER" envDefault:"openai"`
	AIFallback bool          `env:"AI_FALLBACK" envDefault:"true"`
	LLMBaseURL string        `env:"LLM_BASE_URL"`
	LLMAPIKey  string        `env:"LLM_API_KEY"`
	LLMModel   string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMTimeout time.Duration `env:"LLM_TIMEOUT" envDefault:"45s"`

	IdleTick     time.Duration `env:"IDLE_TICK" envDefault:"30s"`
	AutoRollAt   string        `env:"AUTO_ROLL_AT" envDefault:"12:00"`
	AutoRollTick time.Duration `env:"AUTO_ROLL_TICK" envDefault:"5m"`
	RevealDelay  time.Duration `env:"REVEAL_DELAY" envDefault:"3s"`
	SweepWorkers int           `env:"SWEEP_WORKERS" envDefault:"4"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile   string `env:"LOG_FILE"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.IdleTick < 30*time.Second {
		cfg.IdleTick = 30 * time.Second
	}
	if cfg.SweepWorkers <= 0 {
		cfg.SweepWorkers = 1
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// New loads the config and exits if the bot token is missing.
func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.DiscordToken == "" {
		log.Fatal("DISCORD_TOKEN is not set")
	}
	return cfg
}

// Location resolves Timezone, which is the calendar used for quota days and roulette rounds.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
