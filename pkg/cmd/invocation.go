// Package cmd provides a transport-agnostic command core: a command is something
// with a name, description, and Run(ctx, invocation). How it is dispatched
// (chat text command, CLI) is defined by adapters that wrap this.
package cmd

import (
	"context"
	"strings"
)

// Invocation carries the input any command runner can pass: the parsed
// arguments, the raw argument text, and an opaque payload. Adapters set Data to
// their own context (e.g. the chat event and a reply function).
type Invocation struct {
	Name string
	Args []string
	Raw  string
	Data interface{}
}

// Command is the universal contract: identity plus execution.
type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}

// Parse splits a chat line like "!rolltitle Grand Jester" into an invocation.
// It reports false when text does not start with prefix or names no command.
// A "@botname" suffix on the command word is dropped ("!roll@gremlin").
func Parse(prefix, text string) (*Invocation, bool) {
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return nil, false
	}
	body := strings.TrimPrefix(text, prefix)
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return nil, false
	}
	name := strings.ToLower(fields[0])
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return nil, false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body), fields[0]))
	return &Invocation{Name: name, Args: fields[1:], Raw: raw}, true
}
