package config

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Setting keys recognised in app-wide and per-chat settings maps.
const (
	KeyIsActive               = "is_active"
	KeyStyle                  = "style"
	KeyTone                   = "tone"
	KeyProfanity              = "profanity"
	KeyQuietHours             = "quiet_hours"
	KeyReviveEnabled          = "revive_enabled"
	KeyReviveAfterHours       = "revive_after_hours"
	KeyInterjectP             = "interject_p"
	KeyInterjectCooldown      = "interject_cooldown"
	KeyContextMaxTurns        = "context_max_turns"
	KeyContextMaxPromptTokens = "context_max_prompt_tokens"
	KeyMaxLength              = "max_length"
	KeyLLMDailyLimit          = "llm_daily_limit"
	KeySummaryDailyLimit      = "summary_daily_limit"
	KeyTemperature            = "temperature"
	KeyTopP                   = "top_p"
	KeyRouletteCustomTitle    = "roulette_custom_title"
	KeyRouletteAutoEnabled    = "roulette_auto_enabled"
	KeyModeration             = "moderation"
	KeyProvider               = "provider"
	KeyFallback               = "fallback"
)

// ChatConfig is the effective configuration for one chat: defaults, overlaid by
// app-wide settings, overlaid by the chat's own settings.
type ChatConfig struct {
	IsActive  bool
	Style     string
	Tone      int
	Profanity string

	QuietHours        string
	ReviveEnabled     bool
	ReviveAfterHours  int
	InterjectP        int
	InterjectCooldown int // seconds

	ContextMaxTurns        int
	ContextMaxPromptTokens int
	MaxLength              int // answer tokens, 0 = provider default

	LLMDailyLimit     int
	SummaryDailyLimit int

	Temperature float64
	TopP        float64

	RouletteCustomTitle string
	RouletteAutoEnabled bool

	Moderation string
	Provider   string
	Fallback   bool
}

// Defaults returns the built-in values used when no setting overrides a key.
func Defaults() ChatConfig {
	return ChatConfig{
		IsActive:               true,
		Style:                  "standup",
		Tone:                   3,
		Profanity:              "soft",
		ReviveEnabled:          true,
		ReviveAfterHours:       48,
		InterjectP:             5,
		InterjectCooldown:      60,
		ContextMaxTurns:        100,
		ContextMaxPromptTokens: 32000,
		Temperature:            1.0,
		TopP:                   0.9,
		Moderation:             "soft",
		Fallback:               true,
	}
}

// Resolve builds a ChatConfig from the app-wide map and the chat map. Unknown keys
// are ignored, malformed values keep the previous layer's value, and numeric values
// are clamped into their valid ranges.
func Resolve(app, chat map[string]any) ChatConfig {
	c := Defaults()
	c.apply(app)
	c.apply(chat)
	c.clamp()
	return c
}

// CooldownDuration is the minimum gap between two spontaneous replies.
func (c ChatConfig) CooldownDuration() time.Duration {
	return time.Duration(c.InterjectCooldown) * time.Second
}

// ReviveThreshold is how long a chat must be silent before it is revived.
func (c ChatConfig) ReviveThreshold() time.Duration {
	return time.Duration(c.ReviveAfterHours) * time.Hour
}

func (c *ChatConfig) apply(m map[string]any) {
	for k, v := range m {
		switch k {
		case KeyIsActive:
			c.IsActive = asBool(v, c.IsActive)
		case KeyStyle:
			c.Style = asString(v, c.Style)
		case KeyTone:
			c.Tone = asInt(v, c.Tone)
		case KeyProfanity:
			c.Profanity = asString(v, c.Profanity)
		case KeyQuietHours:
			c.QuietHours = asString(v, "")
		case KeyReviveEnabled:
			c.ReviveEnabled = asBool(v, c.ReviveEnabled)
		case KeyReviveAfterHours:
			c.ReviveAfterHours = asInt(v, c.ReviveAfterHours)
		case KeyInterjectP:
			c.InterjectP = asInt(v, c.InterjectP)
		case KeyInterjectCooldown:
			c.InterjectCooldown = asInt(v, c.InterjectCooldown)
		case KeyContextMaxTurns:
			c.ContextMaxTurns = asInt(v, c.ContextMaxTurns)
		case KeyContextMaxPromptTokens:
			c.ContextMaxPromptTokens = asInt(v, c.ContextMaxPromptTokens)
		case KeyMaxLength:
			c.MaxLength = asInt(v, c.MaxLength)
		case KeyLLMDailyLimit:
			c.LLMDailyLimit = asInt(v, c.LLMDailyLimit)
		case KeySummaryDailyLimit:
			c.SummaryDailyLimit = asInt(v, c.SummaryDailyLimit)
		case KeyTemperature:
			c.Temperature = asFloat(v, c.Temperature)
		case KeyTopP:
			c.TopP = asFloat(v, c.TopP)
		case KeyRouletteCustomTitle:
			c.RouletteCustomTitle = strings.TrimSpace(asString(v, ""))
		case KeyRouletteAutoEnabled:
			c.RouletteAutoEnabled = asBool(v, c.RouletteAutoEnabled)
		case KeyModeration:
			c.Moderation = asString(v, c.Moderation)
		case KeyProvider:
			c.Provider = asString(v, c.Provider)
		case KeyFallback:
			c.Fallback = asBool(v, c.Fallback)
		}
	}
}

func (c *ChatConfig) clamp() {
	c.Tone = clampInt(c.Tone, 0, 10)
	c.Temperature = clampFloat(c.Temperature, 0, 2)
	c.TopP = clampFloat(c.TopP, 0, 1)
	c.InterjectP = clampInt(c.InterjectP, 0, 100)
	c.InterjectCooldown = clampInt(c.InterjectCooldown, 10, 3600)
	if c.ReviveAfterHours < 1 {
		c.ReviveAfterHours = 1
	}
	c.ContextMaxTurns = clampInt(c.ContextMaxTurns, 10, 500)
	c.ContextMaxPromptTokens = clampInt(c.ContextMaxPromptTokens, 2000, 60000)
	if c.MaxLength < 0 {
		c.MaxLength = 0
	}
}

func asBool(v any, def bool) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return b
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	}
	return def
}

func asString(v any, def string) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return def
	}
	return def
}

func asInt(v any, def int) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return def
		}
		return int(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return def
		}
		return int(f)
	}
	return def
}

func asFloat(v any, def float64) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return def
		}
		f = p
	default:
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
