package discord

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// MaxMessageLen is Discord's limit for one message's content.
const MaxMessageLen = 2000

// Sender posts text to channels, splitting long texts and pacing requests.
type Sender struct {
	session *discordgo.Session
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewSender(s *discordgo.Session, log zerolog.Logger) *Sender {
	return &Sender{
		session: s,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		log:     log,
	}
}

// Send posts text to chatID. Only the first chunk replies to replyTo.
func (s *Sender) Send(ctx context.Context, chatID, text, replyTo string) error {
	for i, chunk := range SplitMessage(text, MaxMessageLen) {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		msg := &discordgo.MessageSend{
			Content: chunk,
			AllowedMentions: &discordgo.MessageAllowedMentions{
				Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
			},
		}
		if i == 0 && replyTo != "" {
			msg.Reference = &discordgo.MessageReference{MessageID: replyTo, ChannelID: chatID}
		}
		if _, err := s.session.ChannelMessageSendComplex(chatID, msg, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send to %s: %w", chatID, err)
		}
	}
	return nil
}

// Mention renders a user ping.
func (s *Sender) Mention(userID, _ string) string {
	return "<@" + userID + ">"
}

// SplitMessage cuts text into chunks of at most limit runes, preferring to cut
// at a newline, then at a space.
func SplitMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var out []string
	for utf8.RuneCountInString(text) > limit {
		r := []rune(text)
		window := string(r[:limit])
		cut := strings.LastIndex(window, "\n")
		if cut <= 0 {
			cut = strings.LastIndex(window, " ")
		}
		if cut <= 0 {
			cut = len(window)
		}
		out = append(out, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
