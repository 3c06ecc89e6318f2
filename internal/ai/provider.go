package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are the sampling and routing knobs for one generation.
type Options struct {
	Temperature float64
	TopP        float64
	MaxTokens   int    // 0 leaves the provider default
	Provider    string // preferred provider name, "" = first configured
	Fallback    bool   // try the next provider when the preferred one fails
}

type Provider interface {
	Name() string
	Generate(ctx context.Context, messages []Message, opts Options) (string, error)
}

// Kind tags the outcome of a generation so callers branch on a value instead of
// matching error types.
type Kind int

const (
	KindOK Kind = iota
	KindRateLimited
	KindProvider
	KindEmptyOutput
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindRateLimited:
		return "rate_limited"
	case KindProvider:
		return "provider_error"
	case KindEmptyOutput:
		return "empty_output"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is returned by providers for failures they can classify.
type Error struct {
	Kind       Kind
	Provider   string
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode lets pkg/retrylimit classify provider errors.
func (e *Error) StatusCode() int {
	if e.Status == 0 && e.Kind == KindRateLimited {
		return 429
	}
	return e.Status
}

// Result is the tagged outcome of Call.
type Result struct {
	Text       string
	Kind       Kind
	RetryAfter time.Duration
	Err        error
}

// OK reports whether the generation produced usable text.
func (r Result) OK() bool { return r.Kind == KindOK }

// Call runs one generation and classifies the outcome. Empty text after trimming
// is KindEmptyOutput, not an error.
func Call(ctx context.Context, p Provider, messages []Message, opts Options) Result {
	if p == nil {
		return Result{Kind: KindProvider, Err: errors.New("no provider configured")}
	}
	text, err := p.Generate(ctx, messages, opts)
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			return Result{Kind: pe.Kind, RetryAfter: pe.RetryAfter, Err: err}
		}
		if looksRateLimited(err) {
			return Result{Kind: KindRateLimited, Err: err}
		}
		return Result{Kind: KindProvider, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Kind: KindEmptyOutput}
	}
	return Result{Text: text, Kind: KindOK}
}

func looksRateLimited(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") || strings.Contains(s, "rate limit") || strings.Contains(s, "too many requests")
}
