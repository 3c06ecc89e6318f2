package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/keshon/gremlin/pkg/retrylimit"
)

// Trace records which provider answered the last call and what failed before it.
type Trace struct {
	Engine string
	Errors []string
}

// MultiProvider tries providers in order, starting with the preferred one, and
// paces each provider with its own adaptive limiter.
type MultiProvider struct {
	providers []Provider
	limiters  map[string]*retrylimit.AdaptiveLimiter

	mu    sync.Mutex
	trace Trace
}

func NewMultiProvider(providers ...Provider) *MultiProvider {
	m := &MultiProvider{limiters: make(map[string]*retrylimit.AdaptiveLimiter)}
	for _, p := range providers {
		if p == nil {
			continue
		}
		m.providers = append(m.providers, p)
		m.limiters[p.Name()] = retrylimit.NewAdaptiveLimiter(2, 0.2, 5, 0.2, 0.5)
	}
	return m
}

func (m *MultiProvider) Name() string { return "multi" }

// Generate runs the preferred provider (opts.Provider, or the first one) and, when
// opts.Fallback is set, the remaining providers in order until one answers. Empty
// output is returned as-is and does not trigger fallback.
func (m *MultiProvider) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	order := m.order(opts.Provider)
	if len(order) == 0 {
		return "", errors.New("no providers configured")
	}
	if !opts.Fallback {
		order = order[:1]
	}

	trace := Trace{}
	defer func() {
		m.mu.Lock()
		m.trace = trace
		m.mu.Unlock()
	}()

	var lastErr error
	for _, p := range order {
		lim := m.limiters[p.Name()]
		if err := lim.Wait(ctx); err != nil {
			return "", err
		}
		text, err := p.Generate(ctx, messages, opts)
		lim.Observe(err)
		if err == nil {
			trace.Engine = p.Name()
			return text, nil
		}
		trace.Errors = append(trace.Errors, fmt.Sprintf("%s: %v", p.Name(), err))
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

// LastTrace returns the trace of the most recent Generate call.
func (m *MultiProvider) LastTrace() Trace {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Trace{Engine: m.trace.Engine, Errors: append([]string(nil), m.trace.Errors...)}
}

func (m *MultiProvider) order(preferred string) []Provider {
	if preferred == "" {
		return append([]Provider(nil), m.providers...)
	}
	out := make([]Provider, 0, len(m.providers))
	for _, p := range m.providers {
		if p.Name() == preferred {
			out = append(out, p)
		}
	}
	for _, p := range m.providers {
		if p.Name() != preferred {
			out = append(out, p)
		}
	}
	return out
}
