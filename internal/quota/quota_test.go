package quota

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestLedger(now time.Time) (*Ledger, *MemoryBackend) {
	mem := NewMemoryBackend()
	mem.now = func() time.Time { return now }
	l := NewLedger(mem, time.UTC, zerolog.Nop())
	l.now = func() time.Time { return now }
	return l, mem
}

func TestConsume_ConcurrentNeverExceedsLimit(t *testing.T) {
	l, _ := newTestLedger(time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	const limit, callers = 7, 50
	var ok atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Consume(ctx, "c1", Request{Prefix: PrefixLLM, Limit: limit})
			if err != nil {
				t.Errorf("Consume: %v", err)
				return
			}
			if res.Allowed {
				if res.Counts[PrefixLLM] > limit {
					t.Errorf("admitted with count %d > %d", res.Counts[PrefixLLM], limit)
				}
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != limit {
		t.Fatalf("admitted %d, want %d", ok.Load(), limit)
	}
	used, _ := l.Usage(ctx, "c1", PrefixLLM)
	if used != limit {
		t.Fatalf("Usage = %d, want %d", used, limit)
	}
}

func TestConsume_RollsBackAllCounters(t *testing.T) {
	l, _ := newTestLedger(time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if res, _ := l.Consume(ctx, "c1", Request{PrefixSummary, 1}); !res.Allowed {
		t.Fatalf("first summary should pass")
	}

	res, err := l.Consume(ctx, "c1", Request{PrefixLLM, 10}, Request{PrefixSummary, 1})
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed {
		t.Fatalf("expected rejection")
	}
	if len(res.Exceeded) != 1 || res.Exceeded[0] != PrefixSummary {
		t.Fatalf("Exceeded = %v", res.Exceeded)
	}
	if res.Counts[PrefixLLM] != 0 || res.Counts[PrefixSummary] != 1 {
		t.Fatalf("Counts after rollback = %v", res.Counts)
	}
}

func TestConsume_UnlimitedSkipped(t *testing.T) {
	l, _ := newTestLedger(time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	res, err := l.Consume(ctx, "c1", Request{PrefixLLM, 0}, Request{PrefixSummary, -1})
	if err != nil || !res.Allowed || len(res.Counts) != 0 {
		t.Fatalf("Consume = %+v, %v", res, err)
	}
	if n, _ := l.Usage(ctx, "c1", PrefixLLM); n != 0 {
		t.Fatalf("unlimited counter was incremented: %d", n)
	}
}

func TestRefund_RestoresAndClamps(t *testing.T) {
	l, _ := newTestLedger(time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	l.Consume(ctx, "c1", Request{PrefixLLM, 5})
	l.Consume(ctx, "c1", Request{PrefixLLM, 5})
	if err := l.Refund(ctx, "c1", PrefixLLM); err != nil {
		t.Fatal(err)
	}
	if n, _ := l.Usage(ctx, "c1", PrefixLLM); n != 1 {
		t.Fatalf("after refund Usage = %d, want 1", n)
	}
	l.Refund(ctx, "c1", PrefixLLM)
	l.Refund(ctx, "c1", PrefixLLM)
	if n, _ := l.Usage(ctx, "c1", PrefixLLM); n != 0 {
		t.Fatalf("double refund went to %d", n)
	}
	l.Refund(ctx, "nobody", PrefixLLM)
	if n, _ := l.Usage(ctx, "nobody", PrefixLLM); n != 0 {
		t.Fatalf("refund on absent counter = %d", n)
	}
}

func TestCounters_ExpireAtEndOfDay(t *testing.T) {
	now := time.Date(2025, 10, 1, 23, 59, 0, 0, time.UTC)
	l, mem := newTestLedger(now)
	ctx := context.Background()

	l.Consume(ctx, "c1", Request{PrefixLLM, 1})
	key := l.key(PrefixLLM, "c1")

	mem.now = func() time.Time { return now.Add(61 * time.Second) }
	if v, _ := mem.MGet(ctx, []string{key}); v[0] != 0 {
		t.Fatalf("counter survived midnight: %d", v[0])
	}

	l.now = func() time.Time { return now.Add(2 * time.Minute) }
	if res, _ := l.Consume(ctx, "c1", Request{PrefixLLM, 1}); !res.Allowed {
		t.Fatalf("new day should start a fresh counter")
	}
}

func TestMarks(t *testing.T) {
	mem := NewMemoryBackend()
	m := NewMarks(mem)
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

	if within, _ := m.Within(ctx, MarkInterject, "c1", now, time.Minute); within {
		t.Fatalf("no mark should not be within window")
	}
	if err := m.Stamp(ctx, MarkInterject, "c1", now, 0); err != nil {
		t.Fatal(err)
	}
	last, _ := m.Last(ctx, MarkInterject, "c1")
	if !last.Equal(now) {
		t.Fatalf("Last = %v, want %v", last, now)
	}
	if within, _ := m.Within(ctx, MarkInterject, "c1", now.Add(30*time.Second), time.Minute); !within {
		t.Fatalf("30s after stamp should be within a 1m window")
	}
	if within, _ := m.Within(ctx, MarkInterject, "c1", now.Add(2*time.Minute), time.Minute); within {
		t.Fatalf("2m after stamp should be outside a 1m window")
	}
	if within, _ := m.Within(ctx, MarkRevive, "c1", now, time.Hour); within {
		t.Fatalf("kinds must not share marks")
	}
}

func TestRedisBackend_Integration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := DialRedis(ctx, addr, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer rdb.Close()

	l := NewLedger(NewRedisBackend(rdb), time.UTC, zerolog.Nop())
	chat := "it-" + time.Now().Format("150405.000000")
	defer rdb.Del(ctx, l.key(PrefixLLM, chat))

	for i := 0; i < 2; i++ {
		if res, err := l.Consume(ctx, chat, Request{PrefixLLM, 2}); err != nil || !res.Allowed {
			t.Fatalf("consume %d: %+v %v", i, res, err)
		}
	}
	res, err := l.Consume(ctx, chat, Request{PrefixLLM, 2})
	if err != nil || res.Allowed || res.Counts[PrefixLLM] != 2 {
		t.Fatalf("third consume: %+v %v", res, err)
	}
	for i := 0; i < 3; i++ {
		if err := l.Refund(ctx, chat, PrefixLLM); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := l.Usage(ctx, chat, PrefixLLM); n != 0 {
		t.Fatalf("Usage after refunds = %d", n)
	}
}
