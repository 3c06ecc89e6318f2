package mind

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keshon/gremlin/internal/ai"
	"github.com/keshon/gremlin/internal/config"
	"github.com/keshon/gremlin/internal/moderation"
	"github.com/keshon/gremlin/internal/quota"
	"github.com/keshon/gremlin/internal/storage"
	"github.com/rs/zerolog"
)

type fakeProvider struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	last    []ai.Message
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(_ context.Context, msgs []ai.Message, _ ai.Options) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	p.last = msgs
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.replies) {
		return p.replies[i], nil
	}
	return "default reply", nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeTurns struct {
	turns map[string][]ChatTurn
	last  map[string]time.Time
	err   error
}

func (f *fakeTurns) RecentTurns(_ context.Context, chatID string, limit int) ([]ChatTurn, error) {
	if f.err != nil {
		return nil, f.err
	}
	t := f.turns[chatID]
	if len(t) > limit {
		t = t[len(t)-limit:]
	}
	return t, nil
}

func (f *fakeTurns) LastHumanMessageAt(_ context.Context, chatID string) (time.Time, error) {
	return f.last[chatID], nil
}

type fakeSettings struct {
	confs map[string]config.ChatConfig
	chats []storage.Chat
}

func (f *fakeSettings) ChatConfig(_ context.Context, chatID string) (config.ChatConfig, error) {
	if c, ok := f.confs[chatID]; ok {
		return c, nil
	}
	return config.Defaults(), nil
}

func (f *fakeSettings) ActiveChats(context.Context) ([]storage.Chat, error) {
	return f.chats, nil
}

type sent struct {
	chatID, text, replyTo string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
	fail map[string]bool
}

func (f *fakeSender) Send(_ context.Context, chatID, text, replyTo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[chatID] {
		return errors.New("send failed")
	}
	f.msgs = append(f.msgs, sent{chatID, text, replyTo})
	return nil
}

func (f *fakeSender) Sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.msgs...)
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	engine   *Engine
	provider *fakeProvider
	turns    *fakeTurns
	settings *fakeSettings
	sender   *fakeSender
	ledger   *quota.Ledger
	marks    *quota.Marks
}

func newHarness(t *testing.T, rnd RandomSource) *harness {
	t.Helper()
	backend := quota.NewMemoryBackend()
	h := &harness{
		provider: &fakeProvider{},
		turns:    &fakeTurns{turns: map[string][]ChatTurn{}, last: map[string]time.Time{}},
		settings: &fakeSettings{confs: map[string]config.ChatConfig{}},
		sender:   &fakeSender{fail: map[string]bool{}},
		ledger:   quota.NewLedger(backend, time.UTC, zerolog.Nop()),
		marks:    quota.NewMarks(backend),
	}
	h.engine = NewEngine(Deps{
		Turns:     h.turns,
		Provider:  h.provider,
		Ledger:    h.ledger,
		Marks:     h.marks,
		Moderator: moderation.New(),
		Settings:  h.settings,
		Sender:    h.sender,
		Random:    rnd,
		Location:  time.UTC,
		Logger:    zerolog.Nop(),
		BotName:   "gremlin",
	})
	h.engine.now = func() time.Time { return testNow }
	return h
}

func (h *harness) usage(t *testing.T, chatID, prefix string) int64 {
	t.Helper()
	n, err := h.ledger.Usage(context.Background(), chatID, prefix)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func addressed(chatID, text string) IncomingMessage {
	return IncomingMessage{ChatID: chatID, MessageID: "m1", UserID: "u1", Username: "ann", Text: text, Addressed: true}
}

func TestInterject_ZeroProbabilityNeverGenerates(t *testing.T) {
	for _, draw := range []float64{0, 0.001, 0.5, 0.999} {
		h := newHarness(t, fixedRandom(draw))
		conf := config.Defaults()
		conf.InterjectP = 0

		msg := IncomingMessage{ChatID: "c1", Username: "ann", Text: "anyone here?"}
		out := h.engine.OnIncomingMessage(context.Background(), msg, conf, turnsOf("ann", "anyone here?"))
		if out.Action != ActionNone || out.Reason != ReasonDisabled {
			t.Fatalf("draw %v: outcome %+v", draw, out)
		}
		if h.provider.Calls() != 0 {
			t.Fatalf("draw %v: generator called %d times", draw, h.provider.Calls())
		}
	}
}

func TestReply_DailyLimitOne(t *testing.T) {
	h := newHarness(t, fixedRandom(0.5))
	conf := config.Defaults()
	conf.LLMDailyLimit = 1
	ctx := context.Background()

	first := h.engine.OnIncomingMessage(ctx, addressed("c1", "hey gremlin"), conf, nil)
	if first.Action != ActionReplied {
		t.Fatalf("first outcome %+v", first)
	}
	second := h.engine.OnIncomingMessage(ctx, addressed("c1", "again?"), conf, nil)
	if second.Action != ActionNotice || second.Reason != ReasonQuota {
		t.Fatalf("second outcome %+v", second)
	}
	if h.provider.Calls() != 1 {
		t.Fatalf("generator calls = %d, want 1", h.provider.Calls())
	}
	if got := h.usage(t, "c1", quota.PrefixLLM); got != 1 {
		t.Fatalf("usage = %d, want 1", got)
	}
	msgs := h.sender.Sent()
	if len(msgs) != 2 || msgs[1].text != DefaultNotices().QuotaExceeded || msgs[1].replyTo != "m1" {
		t.Fatalf("sent %+v", msgs)
	}
}

func TestReply_EmptyOutputRetriedOnceThenRefunded(t *testing.T) {
	h := newHarness(t, fixedRandom(0.5))
	h.provider.replies = []string{"  ", ""}
	conf := config.Defaults()
	conf.LLMDailyLimit = 5

	out := h.engine.OnIncomingMessage(context.Background(), addressed("c1", "say something"), conf, nil)
	if out.Action != ActionNotice || out.Text != DefaultNotices().EmptyOutput {
		t.Fatalf("outcome %+v", out)
	}
	if h.provider.Calls() != 2 {
		t.Fatalf("generator calls = %d, want 2", h.provider.Calls())
	}
	if got := h.usage(t, "c1", quota.PrefixLLM); got != 0 {
		t.Fatalf("usage = %d, want 0 after refund", got)
	}
}

func TestReply_EmptyThenSuccess(t *testing.T) {
	h := newHarness(t, fixedRandom(0.5))
	h.provider.replies = []string{"", "second try"}

	out := h.engine.OnIncomingMessage(context.Background(), addressed("c1", "hi"), config.Defaults(), nil)
	if out.Action != ActionReplied || out.Text != "second try" {
		t.Fatalf("outcome %+v", out)
	}
}

func TestReply_ProviderErrorNotRetried(t *testing.T) {
	h := newHarness(t, fixedRandom(0.5))
	h.provider.errs = []error{errors.New("boom")}
	conf := config.Defaults()
	conf.LLMDailyLimit = 3

	out := h.engine.OnIncomingMessage(context.Background(), addressed("c1", "hi"), conf, nil)
	if out.Text != DefaultNotices().GeneratorFailed {
		t.Fatalf("outcome %+v", out)
	}
	if h.provider.Calls() != 1 {
		t.Fatalf("generator calls = %d, want 1", h.provider.Calls())
	}
	if got := h.usage(t, "c1", quota.PrefixLLM); got != 0 {
		t.Fatalf("usage = %d, want 0", got)
	}
}

func TestReply_RateLimitHint(t *testing.T) {
	h := newHarness(t, fixedRandom(0.5))
	h.provider.errs = []error{&ai.Error{Kind: ai.KindRateLimited, Provider: "fake", RetryAfter: 5 * time.Second}}

	out := h.engine.OnIncomingMessage(context.Background(), addressed("c1", "hi"), config.Defaults(), nil)
	if !strings.Contains(out.Text, "~5 s") {
		t.Fatalf("notice %q has no wait hint", out.Text)
	}
}

func TestReply_QuestionIsFinalDirective(t *testing.T) {
	h := newHarness(t, fixedRandom(0.5))
	h.turns.turns["c1"] = turnsOf("bob", "earlier chatter")

	h.engine.OnIncomingMessage(context.Background(), addressed("c1", "gremlin, what is Go?"), config.Defaults(), nil)
	last := h.provider.last[len(h.provider.last)-1]
	if !strings.Contains(last.Content, "ann: gremlin, what is Go?") {
		t.Fatalf("final directive %q", last.Content)
	}
}

func TestOnIncoming_Skips(t *testing.T) {
	h := newHarness(t, fixedRandom(0))
	conf := config.Defaults()
	conf.InterjectP = 100
	ctx := context.Background()

	tests := []struct {
		name   string
		msg    IncomingMessage
		conf   func(c config.ChatConfig) config.ChatConfig
		reason string
	}{
		{"bot", IncomingMessage{ChatID: "c1", Text: "beep", IsBot: true}, nil, ReasonAutomated},
		{"slash", IncomingMessage{ChatID: "c1", Text: "/summary"}, nil, ReasonCommand},
		{"bang", IncomingMessage{ChatID: "c1", Text: "!roll", Addressed: true}, nil, ReasonCommand},
		{"inactive", IncomingMessage{ChatID: "c1", Text: "hi", Addressed: true}, func(c config.ChatConfig) config.ChatConfig {
			c.IsActive = false
			return c
		}, ReasonInactive},
	}
	for _, tt := range tests {
		c := conf
		if tt.conf != nil {
			c = tt.conf(c)
		}
		out := h.engine.OnIncomingMessage(ctx, tt.msg, c, nil)
		if out.Reason != tt.reason {
			t.Errorf("%s: reason %q, want %q", tt.name, out.Reason, tt.reason)
		}
	}
	if h.provider.Calls() != 0 {
		t.Fatalf("generator called %d times", h.provider.Calls())
	}
}

func TestInterject_GatesAndCooldown(t *testing.T) {
	h := newHarness(t, fixedRandom(0))
	conf := config.Defaults()
	conf.InterjectP = 100
	ctx := context.Background()
	msg := IncomingMessage{ChatID: "c1", MessageID: "m9", Username: "ann", Text: "so boring"}

	out := h.engine.OnIncomingMessage(ctx, msg, conf, turnsOf("ann", "so boring"))
	if out.Action != ActionInterjected {
		t.Fatalf("first outcome %+v", out)
	}
	last, err := h.marks.Last(ctx, quota.MarkInterject, "c1")
	if err != nil || !last.Equal(testNow.Truncate(time.Millisecond)) {
		t.Fatalf("mark = %v, %v", last, err)
	}

	out = h.engine.OnIncomingMessage(ctx, msg, conf, nil)
	if out.Reason != ReasonCooldown {
		t.Fatalf("second outcome %+v", out)
	}

	h.engine.now = func() time.Time { return testNow.Add(conf.CooldownDuration() + time.Second) }
	out = h.engine.OnIncomingMessage(ctx, msg, conf, nil)
	if out.Action != ActionInterjected {
		t.Fatalf("after cooldown %+v", out)
	}
}

func TestInterject_QuietHoursAndDice(t *testing.T) {
	ctx := context.Background()
	msg := IncomingMessage{ChatID: "c1", Username: "ann", Text: "hello"}

	h := newHarness(t, fixedRandom(0))
	h.engine.now = func() time.Time { return time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC) }
	conf := config.Defaults()
	conf.InterjectP = 100
	conf.QuietHours = "23:00-02:00"
	if out := h.engine.OnIncomingMessage(ctx, msg, conf, nil); out.Reason != ReasonQuietHours {
		t.Fatalf("quiet hours outcome %+v", out)
	}

	h = newHarness(t, fixedRandom(0.6))
	conf = config.Defaults()
	conf.InterjectP = 50
	if out := h.engine.OnIncomingMessage(ctx, msg, conf, nil); out.Reason != ReasonDice {
		t.Fatalf("dice outcome %+v", out)
	}
	if h.provider.Calls() != 0 {
		t.Fatal("generator called")
	}
}

func TestInterject_FailureIsSilent(t *testing.T) {
	h := newHarness(t, fixedRandom(0))
	h.provider.errs = []error{errors.New("down")}
	conf := config.Defaults()
	conf.InterjectP = 100
	conf.LLMDailyLimit = 10

	out := h.engine.OnIncomingMessage(context.Background(), IncomingMessage{ChatID: "c1", Username: "ann", Text: "hm"}, conf, nil)
	if out.Action != ActionNone || out.Reason != ReasonGenerator {
		t.Fatalf("outcome %+v", out)
	}
	if len(h.sender.Sent()) != 0 {
		t.Fatal("interjection failure must not be visible")
	}
	if got := h.usage(t, "c1", quota.PrefixLLM); got != 0 {
		t.Fatalf("usage = %d, want 0", got)
	}
}

func TestIdleTick_RevivesQuietGroups(t *testing.T) {
	h := newHarness(t, fixedRandom(0))
	conf := config.Defaults()
	conf.ReviveAfterHours = 2
	for _, id := range []string{"quiet", "busy", "private", "never", "broken"} {
		h.settings.confs[id] = conf
	}
	h.settings.chats = []storage.Chat{
		{ID: "quiet", Kind: storage.KindGroup, Active: true},
		{ID: "busy", Kind: storage.KindGroup, Active: true},
		{ID: "private", Kind: storage.KindPrivate, Active: true},
		{ID: "never", Kind: storage.KindGroup, Active: true},
		{ID: "broken", Kind: storage.KindGroup, Active: true},
	}
	h.turns.last["quiet"] = testNow.Add(-3 * time.Hour)
	h.turns.last["busy"] = testNow.Add(-10 * time.Minute)
	h.turns.last["private"] = testNow.Add(-72 * time.Hour)
	h.turns.last["broken"] = testNow.Add(-5 * time.Hour)
	h.sender.fail["broken"] = true

	if err := h.engine.OnIdleTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	msgs := h.sender.Sent()
	if len(msgs) != 1 || msgs[0].chatID != "quiet" {
		t.Fatalf("sent %+v", msgs)
	}

	out, err := h.engine.ReviveChat(context.Background(), "quiet")
	if err != nil || out.Reason != ReasonCooldown {
		t.Fatalf("second revival %+v, %v", out, err)
	}
}

func TestReviveChat_QuotaAndDisabled(t *testing.T) {
	h := newHarness(t, fixedRandom(0))
	ctx := context.Background()
	h.turns.last["c1"] = testNow.Add(-100 * time.Hour)

	conf := config.Defaults()
	conf.ReviveEnabled = false
	h.settings.confs["c1"] = conf
	if out, _ := h.engine.ReviveChat(ctx, "c1"); out.Reason != ReasonDisabled {
		t.Fatalf("disabled outcome %+v", out)
	}

	conf.ReviveEnabled = true
	conf.LLMDailyLimit = 1
	h.settings.confs["c1"] = conf
	if _, err := h.ledger.Consume(ctx, "c1", quota.Request{Prefix: quota.PrefixLLM, Limit: 1}); err != nil {
		t.Fatal(err)
	}
	out, err := h.engine.ReviveChat(ctx, "c1")
	if err != nil || out.Reason != ReasonQuota {
		t.Fatalf("quota outcome %+v, %v", out, err)
	}
	if h.provider.Calls() != 0 {
		t.Fatal("generator called")
	}
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()

	t.Run("busy", func(t *testing.T) {
		h := newHarness(t, fixedRandom(0))
		release, _ := h.engine.guard.TryAcquire("c1")
		defer release()
		out := h.engine.Summarize(ctx, "c1", "m1")
		if out.Reason != ReasonBusy || out.Text != DefaultNotices().SummaryBusy {
			t.Fatalf("outcome %+v", out)
		}
	})

	t.Run("empty", func(t *testing.T) {
		h := newHarness(t, fixedRandom(0))
		out := h.engine.Summarize(ctx, "c1", "m1")
		if out.Reason != ReasonEmptyHistory {
			t.Fatalf("outcome %+v", out)
		}
		if h.provider.Calls() != 0 {
			t.Fatal("generator called")
		}
	})

	t.Run("ok", func(t *testing.T) {
		h := newHarness(t, fixedRandom(0))
		h.turns.turns["c1"] = turnsOf("ann", "a", "bob", "b", "ann", "c")
		h.provider.replies = []string{"Everyone argued about tabs."}
		conf := config.Defaults()
		conf.SummaryDailyLimit = 2
		h.settings.confs["c1"] = conf

		out := h.engine.Summarize(ctx, "c1", "m1")
		if out.Action != ActionReplied || !strings.HasPrefix(out.Text, "**Chat summary of the last 3 messages**") {
			t.Fatalf("outcome %+v", out)
		}
		if got := h.usage(t, "c1", quota.PrefixSummary); got != 1 {
			t.Fatalf("summary usage = %d, want 1", got)
		}
		if h.engine.guard.Held("c1") {
			t.Fatal("guard not released")
		}
	})

	t.Run("failure refunds", func(t *testing.T) {
		h := newHarness(t, fixedRandom(0))
		h.turns.turns["c1"] = turnsOf("ann", "a")
		h.provider.errs = []error{errors.New("down")}
		conf := config.Defaults()
		conf.SummaryDailyLimit = 2
		h.settings.confs["c1"] = conf

		out := h.engine.Summarize(ctx, "c1", "")
		if out.Text != DefaultNotices().GeneratorFailed {
			t.Fatalf("outcome %+v", out)
		}
		if got := h.usage(t, "c1", quota.PrefixSummary); got != 0 {
			t.Fatalf("summary usage = %d, want 0", got)
		}
	})
}

func TestSummaryTokens(t *testing.T) {
	tests := []struct{ prompt, maxLen, want int }{
		{2000, 0, 1000},
		{60000, 0, 1024},
		{100, 0, 200},
		{32000, 300, 300},
	}
	for _, tt := range tests {
		if got := SummaryTokens(tt.prompt, tt.maxLen); got != tt.want {
			t.Errorf("SummaryTokens(%d, %d) = %d, want %d", tt.prompt, tt.maxLen, got, tt.want)
		}
	}
}
