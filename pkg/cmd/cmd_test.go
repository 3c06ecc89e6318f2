package cmd

import (
	"context"
	"strings"
	"testing"
)

type echo struct{ name string }

func (e *echo) Name() string        { return e.name }
func (e *echo) Description() string { return "echo" }
func (e *echo) Run(ctx context.Context, inv *Invocation) error {
	inv.Data = append(inv.Data.([]string), e.name)
	return nil
}

func tag(label string) Middleware {
	return func(c Command) Command {
		return Wrap(c, func(ctx context.Context, inv *Invocation) error {
			inv.Data = append(inv.Data.([]string), label)
			return c.Run(ctx, inv)
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		text string
		ok   bool
		name string
		args []string
		raw  string
	}{
		{"!roll", true, "roll", nil, ""},
		{"  !RollTitle  Grand  Jester ", true, "rolltitle", []string{"Grand", "Jester"}, "Grand  Jester"},
		{"!roll@gremlin force", true, "roll", []string{"force"}, "force"},
		{"roll", false, "", nil, ""},
		{"!", false, "", nil, ""},
		{"! ", false, "", nil, ""},
	}
	for _, tt := range tests {
		inv, ok := Parse("!", tt.text)
		if ok != tt.ok {
			t.Fatalf("Parse(%q) ok = %v, want %v", tt.text, ok, tt.ok)
		}
		if !ok {
			continue
		}
		if inv.Name != tt.name || strings.Join(inv.Args, "|") != strings.Join(tt.args, "|") || inv.Raw != tt.raw {
			t.Fatalf("Parse(%q) = %+v", tt.text, inv)
		}
	}
}

func TestRegistry_MiddlewareOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&echo{name: "roll"}, tag("outer"), tag("inner"))

	c := r.Get("ROLL")
	if c == nil {
		t.Fatalf("command not found")
	}
	inv := &Invocation{Data: []string{}}
	if err := c.Run(context.Background(), inv); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := strings.Join(inv.Data.([]string), ",")
	if got != "outer,inner,roll" {
		t.Fatalf("order = %s", got)
	}
	if _, ok := Root(c).(*echo); !ok {
		t.Fatalf("Root() did not unwrap to the original command")
	}
}
