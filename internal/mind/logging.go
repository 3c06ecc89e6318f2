package mind

import (
	"github.com/keshon/gremlin/internal/ai"
	"github.com/rs/zerolog"
)

// LogLLMCall logs the prompt shape at debug level right before generation.
func LogLLMCall(log zerolog.Logger, reqID, action, chatID string, messages []ai.Message, opts ai.Options) {
	if log.GetLevel() > zerolog.DebugLevel {
		return
	}
	log.Debug().
		Str("req", reqID).
		Str("action", action).
		Str("chat", chatID).
		Int("messages", len(messages)).
		Float64("temperature", opts.Temperature).
		Float64("top_p", opts.TopP).
		Int("max_tokens", opts.MaxTokens).
		Str("provider", opts.Provider).
		Msg("llm call")
	for i, m := range messages {
		limit := 200
		if i == 0 {
			limit = 500
		}
		log.Debug().
			Str("req", reqID).
			Int("idx", i).
			Str("role", m.Role).
			Int("len", len(m.Content)).
			Str("preview", TrimToChars(m.Content, limit)).
			Msg("llm message")
	}
}
