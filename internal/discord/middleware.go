package discord

import (
	"context"
	"errors"
	"time"

	"github.com/keshon/gremlin/internal/storage"
	"github.com/keshon/gremlin/pkg/cmd"
)

// MessageContext is the invocation payload of a text command.
type MessageContext struct {
	ChatID    string
	MessageID string
	UserID    string
	Username  string
	Private   bool

	Reply   func(ctx context.Context, text string) error
	IsAdmin func() (bool, error)
}

var errNoContext = errors.New("command invoked without a message context")

func messageContext(inv *cmd.Invocation) (*MessageContext, error) {
	mc, ok := inv.Data.(*MessageContext)
	if !ok || mc == nil {
		return nil, errNoContext
	}
	return mc, nil
}

// withGroupOnly refuses the command in private chats.
func withGroupOnly() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			mc, err := messageContext(inv)
			if err != nil {
				return err
			}
			if mc.Private {
				return mc.Reply(ctx, "This command only works in group chats.")
			}
			return c.Run(ctx, inv)
		})
	}
}

// withManagerOnly lets only chat managers run the command. Private chats are
// always managed by their single user.
func withManagerOnly() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			mc, err := messageContext(inv)
			if err != nil {
				return err
			}
			if !mc.Private && mc.IsAdmin != nil {
				ok, err := mc.IsAdmin()
				if err != nil {
					return err
				}
				if !ok {
					return mc.Reply(ctx, "You need the Manage Server permission for that.")
				}
			}
			return c.Run(ctx, inv)
		})
	}
}

// historyWriter is the part of storage the history middleware needs.
type historyWriter interface {
	AppendCommandToHistory(chatID string, rec storage.CommandHistoryRecord) error
}

// withHistory records every invocation in the chat's command history.
func withHistory(h historyWriter, onErr func(error)) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			if mc, err := messageContext(inv); err == nil {
				err := h.AppendCommandToHistory(mc.ChatID, storage.CommandHistoryRecord{
					ChannelID: mc.ChatID,
					UserID:    mc.UserID,
					Username:  mc.Username,
					Command:   c.Name(),
					Param:     inv.Raw,
					Datetime:  time.Now(),
				})
				if err != nil && onErr != nil {
					onErr(err)
				}
			}
			return c.Run(ctx, inv)
		})
	}
}
