package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/keshon/gremlin/pkg/util"
	"github.com/rs/zerolog"
)

// Counter families.
const (
	PrefixLLM     = "llm"
	PrefixSummary = "summary"
)

// Request asks for one unit of the Prefix counter. Limit <= 0 means unlimited.
type Request struct {
	Prefix string
	Limit  int64
}

// Result of Consume. On rejection Counts holds the rolled-back values and
// Exceeded names the counters that went over their limit.
type Result struct {
	Allowed  bool
	Counts   map[string]int64
	Exceeded []string
}

// Ledger is the per-chat, per-calendar-day usage ledger.
type Ledger struct {
	backend Backend
	loc     *time.Location
	now     func() time.Time
	log     zerolog.Logger
}

func NewLedger(backend Backend, loc *time.Location, log zerolog.Logger) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{backend: backend, loc: loc, now: time.Now, log: log}
}

func (l *Ledger) key(prefix, chatID string) string {
	return fmt.Sprintf("usage:%s:%s:%s", prefix, chatID, util.DayKey(l.now(), l.loc))
}

// Consume takes one unit from every limited counter, or from none of them.
func (l *Ledger) Consume(ctx context.Context, chatID string, reqs ...Request) (Result, error) {
	type slot struct {
		prefix string
		key    string
		limit  int64
	}
	var valid []slot
	for _, r := range reqs {
		if r.Limit > 0 {
			valid = append(valid, slot{r.Prefix, l.key(r.Prefix, chatID), r.Limit})
		}
	}
	if len(valid) == 0 {
		return Result{Allowed: true, Counts: map[string]int64{}}, nil
	}

	keys := make([]string, len(valid))
	for i, s := range valid {
		keys[i] = s.key
	}

	values, err := l.backend.Incr(ctx, keys)
	if err != nil {
		return Result{}, err
	}
	ttl := util.UntilEndOfDay(l.now(), l.loc)
	if err := l.backend.Expire(ctx, keys, ttl); err != nil {
		l.log.Warn().Err(err).Str("chat", chatID).Msg("set counter ttl")
	}

	var exceeded []string
	for i, s := range valid {
		if values[i] > s.limit {
			exceeded = append(exceeded, s.prefix)
		}
	}

	if len(exceeded) == 0 {
		counts := make(map[string]int64, len(valid))
		for i, s := range valid {
			counts[s.prefix] = values[i]
		}
		return Result{Allowed: true, Counts: counts}, nil
	}

	var rollback []string
	for i, s := range valid {
		if values[i] > 0 {
			rollback = append(rollback, s.key)
		}
	}
	if err := l.backend.Decr(ctx, rollback); err != nil {
		return Result{}, fmt.Errorf("rollback usage: %w", err)
	}

	current, err := l.backend.MGet(ctx, keys)
	if err != nil {
		return Result{}, err
	}
	counts := make(map[string]int64, len(valid))
	for i, s := range valid {
		counts[s.prefix] = current[i]
	}
	l.log.Debug().Str("chat", chatID).Strs("exceeded", exceeded).Msg("quota exhausted")
	return Result{Allowed: false, Counts: counts, Exceeded: exceeded}, nil
}

// Refund returns one unit to each named counter, never going below zero.
func (l *Ledger) Refund(ctx context.Context, chatID string, prefixes ...string) error {
	if len(prefixes) == 0 {
		return nil
	}
	keys := make([]string, len(prefixes))
	for i, p := range prefixes {
		keys[i] = l.key(p, chatID)
	}
	return l.backend.Decr(ctx, keys)
}

// Usage is today's count for prefix, zero when the counter does not exist.
func (l *Ledger) Usage(ctx context.Context, chatID, prefix string) (int64, error) {
	vals, err := l.backend.MGet(ctx, []string{l.key(prefix, chatID)})
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}
