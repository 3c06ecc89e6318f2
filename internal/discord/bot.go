package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/gremlin/internal/mind"
	"github.com/keshon/gremlin/internal/persona"
	"github.com/keshon/gremlin/internal/quota"
	"github.com/keshon/gremlin/internal/roulette"
	"github.com/keshon/gremlin/internal/storage"
	"github.com/keshon/gremlin/internal/store"
	"github.com/keshon/gremlin/pkg/cmd"
	"github.com/rs/zerolog"
)

// CommandPrefix starts a text command ("!roll").
const CommandPrefix = "!"

// Deps wires a Bot.
type Deps struct {
	Session  *discordgo.Session
	Sender   *Sender
	Storage  *storage.Storage
	Store    *store.Store
	Engine   *mind.Engine
	Roulette *roulette.Scheduler
	Ledger   *quota.Ledger
	Personas *persona.Catalog
	Logger   zerolog.Logger
}

// Bot is the Discord transport: it records messages, dispatches text commands
// and hands everything else to the engine.
type Bot struct {
	dg       *discordgo.Session
	sender   *Sender
	storage  *storage.Storage
	store    *store.Store
	engine   *mind.Engine
	roulette *roulette.Scheduler
	ledger   *quota.Ledger
	personas *persona.Catalog
	log      zerolog.Logger
	registry *cmd.Registry

	ctx context.Context
}

func New(d Deps) *Bot {
	b := &Bot{
		dg:       d.Session,
		sender:   d.Sender,
		storage:  d.Storage,
		store:    d.Store,
		engine:   d.Engine,
		roulette: d.Roulette,
		ledger:   d.Ledger,
		personas: d.Personas,
		log:      d.Logger,
		ctx:      context.Background(),
	}
	b.registry = b.buildRegistry()
	return b
}

// Run opens the gateway session and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx
	b.dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onMessageCreate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, closing session")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord bot is running")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	ctx := b.ctx
	selfID := s.State.User.ID
	private := m.GuildID == ""

	kind := storage.KindGroup
	if private {
		kind = storage.KindPrivate
	}
	if created, err := b.storage.EnsureChat(m.ChannelID, channelTitle(s, m.ChannelID), kind); err != nil {
		b.log.Error().Err(err).Str("chat", m.ChannelID).Msg("ensure chat")
	} else if created {
		b.log.Info().Str("chat", m.ChannelID).Str("kind", kind).Msg("new chat registered")
	}

	text := strings.TrimSpace(m.ContentWithMentionsReplaced())
	rec := store.Message{
		ChatID:    m.ChannelID,
		MessageID: m.ID,
		UserID:    m.Author.ID,
		Username:  displayName(m.Message),
		Text:      text,
		IsBot:     m.Author.Bot,
		CreatedAt: m.Timestamp,
	}
	if m.MessageReference != nil {
		rec.ReplyToID = m.MessageReference.MessageID
	}
	if err := b.store.RecordMessage(ctx, rec); err != nil && !errors.Is(err, store.ErrDuplicate) {
		b.log.Error().Err(err).Str("chat", m.ChannelID).Msg("record message")
	}

	if m.Author.ID == selfID || text == "" {
		return
	}

	if inv, ok := cmd.Parse(CommandPrefix, m.Content); ok {
		b.dispatch(ctx, s, m, inv)
		return
	}

	conf, err := b.storage.ChatConfig(ctx, m.ChannelID)
	if err != nil {
		b.log.Error().Err(err).Str("chat", m.ChannelID).Msg("chat config")
		return
	}
	out := b.engine.OnIncomingMessage(ctx, mind.IncomingMessage{
		ChatID:    m.ChannelID,
		MessageID: m.ID,
		UserID:    m.Author.ID,
		Username:  rec.Username,
		Text:      text,
		IsBot:     m.Author.Bot,
		Addressed: private || isAddressed(m.Message, selfID),
	}, conf, nil)
	b.log.Debug().Str("chat", m.ChannelID).Str("action", string(out.Action)).Str("reason", out.Reason).Msg("message handled")
}

func (b *Bot) dispatch(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, inv *cmd.Invocation) {
	c := b.registry.Get(inv.Name)
	if c == nil {
		return
	}
	mc := &MessageContext{
		ChatID:    m.ChannelID,
		MessageID: m.ID,
		UserID:    m.Author.ID,
		Username:  displayName(m.Message),
		Private:   m.GuildID == "",
		Reply: func(ctx context.Context, text string) error {
			return b.sender.Send(ctx, m.ChannelID, text, m.ID)
		},
		IsAdmin: func() (bool, error) {
			return canManage(s, m.Author.ID, m.ChannelID)
		},
	}
	inv.Data = mc
	if err := c.Run(ctx, inv); err != nil {
		b.log.Error().Err(err).Str("chat", m.ChannelID).Str("command", inv.Name).Msg("command failed")
		_ = mc.Reply(ctx, "Something went wrong while running that command.")
	}
}

// isAddressed reports whether m mentions the bot or replies to one of its messages.
func isAddressed(m *discordgo.Message, selfID string) bool {
	for _, u := range m.Mentions {
		if u != nil && u.ID == selfID {
			return true
		}
	}
	ref := m.ReferencedMessage
	return ref != nil && ref.Author != nil && ref.Author.ID == selfID
}

func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

func channelTitle(s *discordgo.Session, channelID string) string {
	ch, err := s.State.Channel(channelID)
	if err != nil || ch == nil {
		return ""
	}
	return ch.Name
}

// canManage reports whether the user may change chat settings: administrators
// and members with Manage Server.
func canManage(s *discordgo.Session, userID, channelID string) (bool, error) {
	perms, err := s.UserChannelPermissions(userID, channelID)
	if err != nil {
		return false, fmt.Errorf("get user permissions: %w", err)
	}
	return perms&(discordgo.PermissionAdministrator|discordgo.PermissionManageGuild) != 0, nil
}
