package mind

import (
	"context"
	"time"

	"github.com/keshon/gremlin/internal/ai"
	"github.com/keshon/gremlin/internal/config"
	"github.com/keshon/gremlin/internal/storage"
)

// ChatTurn is one recorded message as the engine sees it.
type ChatTurn struct {
	Speaker     string
	Text        string
	IsAutomated bool
}

// PromptPlan is the assembled prompt: system instructions, one history block and
// the final directive.
type PromptPlan struct {
	SystemPrompt   string
	HistoryBlock   string // "" when the budget left no room even for the header
	FinalDirective string
	HistoryLines   int
}

// Messages renders the plan as a role sequence for the generator.
func (p PromptPlan) Messages() []ai.Message {
	msgs := make([]ai.Message, 0, 3)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: p.SystemPrompt})
	if p.HistoryBlock != "" {
		msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: p.HistoryBlock})
	}
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: p.FinalDirective})
	return msgs
}

// IncomingMessage is a chat message handed to the engine by the transport.
type IncomingMessage struct {
	ChatID    string
	MessageID string
	UserID    string
	Username  string
	Text      string
	IsBot     bool
	Addressed bool // mention of the bot or reply to one of its messages
}

// TurnStore reads conversation history.
type TurnStore interface {
	RecentTurns(ctx context.Context, chatID string, limit int) ([]ChatTurn, error)
	LastHumanMessageAt(ctx context.Context, chatID string) (time.Time, error)
}

// Moderator cleans generated text; it never fails.
type Moderator interface {
	Apply(text, policy string) string
}

// SettingsProvider resolves chat configuration and lists chats.
type SettingsProvider interface {
	ChatConfig(ctx context.Context, chatID string) (config.ChatConfig, error)
	ActiveChats(ctx context.Context) ([]storage.Chat, error)
}

// Sender delivers text to a chat. replyTo may be empty.
type Sender interface {
	Send(ctx context.Context, chatID, text, replyTo string) error
}

// RandomSource supplies uniform draws; *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
	Intn(n int) int
}
