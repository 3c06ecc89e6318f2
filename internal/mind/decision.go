package mind

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/keshon/gremlin/pkg/util"
)

// QuietHours is a local time-of-day window in minutes since midnight. A window
// whose start is after its end wraps midnight.
type QuietHours struct {
	Start, End int
	Enabled    bool
}

// ParseQuietHours parses "HH:MM-HH:MM". An empty string disables the window.
func ParseQuietHours(s string) (QuietHours, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return QuietHours{}, nil
	}
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return QuietHours{}, fmt.Errorf("quiet hours %q: want HH:MM-HH:MM", s)
	}
	start, err := util.ParseClock(from)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet hours %q: %w", s, err)
	}
	end, err := util.ParseClock(to)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet hours %q: %w", s, err)
	}
	return QuietHours{Start: start, End: end, Enabled: start != end}, nil
}

// Contains reports whether t's wall-clock time falls inside the window.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if q.Start < q.End {
		return m >= q.Start && m < q.End
	}
	return m >= q.Start || m < q.End
}

// Skip reasons reported in Outcome.Reason.
const (
	ReasonInactive     = "inactive"
	ReasonAutomated    = "automated"
	ReasonCommand      = "command"
	ReasonDisabled     = "disabled"
	ReasonQuietHours   = "quiet_hours"
	ReasonCooldown     = "cooldown"
	ReasonDice         = "dice"
	ReasonQuota        = "quota"
	ReasonBusy         = "busy"
	ReasonEmptyHistory = "empty_history"
	ReasonGenerator    = "generator"
	ReasonStore        = "store"
)

// cooldownActive reports whether last is younger than window.
func cooldownActive(last, now time.Time, window time.Duration) bool {
	return !last.IsZero() && now.Sub(last) < window
}

// passesDice draws uniformly in [0,100) and passes when the draw is below p.
func passesDice(rnd RandomSource, p int) bool {
	return rnd.Float64()*100 < float64(p)
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) Intn(n int) int   { return rand.Intn(n) }

// DefaultRandom is a goroutine-safe RandomSource backed by math/rand.
var DefaultRandom RandomSource = globalRand{}
