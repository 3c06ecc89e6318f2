package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChatKeys are the settings a chat may override.
var ChatKeys = []string{
	KeyIsActive,
	KeyStyle,
	KeyTone,
	KeyProfanity,
	KeyQuietHours,
	KeyReviveEnabled,
	KeyReviveAfterHours,
	KeyInterjectP,
	KeyInterjectCooldown,
	KeyContextMaxTurns,
	KeyContextMaxPromptTokens,
	KeyMaxLength,
	KeyLLMDailyLimit,
	KeySummaryDailyLimit,
	KeyTemperature,
	KeyTopP,
	KeyRouletteCustomTitle,
	KeyRouletteAutoEnabled,
	KeyModeration,
	KeyProvider,
	KeyFallback,
}

// ParseValue decodes a setting typed on a command line the way YAML would:
// "5" is an int, "0.4" a float, "true" a bool. "reset" yields nil, which
// removes the override.
func ParseValue(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("missing value")
	}
	if strings.EqualFold(raw, "reset") {
		return nil, nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("parse value %q: %w", raw, err)
	}
	switch v.(type) {
	case string, bool, int, float64:
		return v, nil
	}
	return raw, nil
}
