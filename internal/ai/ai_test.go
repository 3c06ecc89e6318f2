package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Generate(ctx context.Context, _ []Message, _ Options) (string, error) {
	s.calls++
	return s.text, s.err
}

func TestCall_Classifies(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		p         *stubProvider
		wantKind  Kind
		wantRetry time.Duration
	}{
		{"ok", &stubProvider{name: "a", text: "  hi  "}, KindOK, 0},
		{"empty", &stubProvider{name: "a", text: "   "}, KindEmptyOutput, 0},
		{"typed rate limit", &stubProvider{name: "a", err: &Error{Kind: KindRateLimited, RetryAfter: 7 * time.Second}}, KindRateLimited, 7 * time.Second},
		{"string rate limit", &stubProvider{name: "a", err: errors.New("HTTP 429 Too Many Requests")}, KindRateLimited, 0},
		{"generic", &stubProvider{name: "a", err: errors.New("boom")}, KindProvider, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Call(ctx, tt.p, nil, Options{})
			if r.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v", r.Kind, tt.wantKind)
			}
			if r.RetryAfter != tt.wantRetry {
				t.Fatalf("RetryAfter = %v, want %v", r.RetryAfter, tt.wantRetry)
			}
			if tt.wantKind == KindOK && r.Text != "hi" {
				t.Fatalf("Text = %q", r.Text)
			}
		})
	}
}

func TestMultiProvider_FallbackOrder(t *testing.T) {
	a := &stubProvider{name: "a", err: errors.New("down")}
	b := &stubProvider{name: "b", text: "from b"}
	m := NewMultiProvider(a, b)

	text, err := m.Generate(context.Background(), nil, Options{Fallback: true})
	if err != nil || text != "from b" {
		t.Fatalf("Generate = %q, %v", text, err)
	}
	tr := m.LastTrace()
	if tr.Engine != "b" || len(tr.Errors) != 1 {
		t.Fatalf("trace = %+v", tr)
	}

	a.calls, b.calls = 0, 0
	if _, err := m.Generate(context.Background(), nil, Options{Fallback: false}); err == nil {
		t.Fatalf("expected error without fallback")
	}
	if b.calls != 0 {
		t.Fatalf("fallback provider called with Fallback=false")
	}

	a.calls, b.calls = 0, 0
	text, err = m.Generate(context.Background(), nil, Options{Provider: "b"})
	if err != nil || text != "from b" || a.calls != 0 {
		t.Fatalf("preferred provider not tried first: %q %v a=%d", text, err, a.calls)
	}
}

func TestPollinations_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	p := NewPollinationsProvider()
	p.endpoint = srv.URL

	r := Call(context.Background(), p, []Message{{Role: RoleUser, Content: "hi"}}, Options{Temperature: 1})
	if r.Kind != KindRateLimited {
		t.Fatalf("Kind = %v, want rate limited (%v)", r.Kind, r.Err)
	}
	if r.RetryAfter != 12*time.Second {
		t.Fatalf("RetryAfter = %v", r.RetryAfter)
	}
}

func TestPollinations_ParsesReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"<think>hmm</think> \"hello there\""}}]}`))
	}))
	defer srv.Close()

	p := NewPollinationsProvider()
	p.endpoint = srv.URL

	text, err := p.Generate(context.Background(), nil, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "hello there" {
		t.Fatalf("text = %q", text)
	}
}
