package mind

import (
	"fmt"
	"time"
)

// Notices are the short user-facing messages the engine sends on failures.
type Notices struct {
	QuotaExceeded   string
	RateLimited     string
	GeneratorFailed string
	EmptyOutput     string
	SummaryBusy     string
	SummaryEmpty    string
	Inactive        string
}

func DefaultNotices() Notices {
	return Notices{
		QuotaExceeded:   "Daily limit reached for this chat. Try again tomorrow.",
		RateLimited:     "🤖 The model is overloaded.",
		GeneratorFailed: "🤖 Something broke on my side. Try again later.",
		EmptyOutput:     "🤖 Couldn't come up with anything this time.",
		SummaryBusy:     "A summary is already being prepared, please wait.",
		SummaryEmpty:    "Nothing to summarise: the history is empty.",
		Inactive:        "I'm switched off in this chat.",
	}
}

// rateLimited appends a wait hint when the provider gave one.
func (n Notices) rateLimited(retryAfter time.Duration) string {
	if retryAfter <= 0 {
		return n.RateLimited
	}
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("%s Try again in ~%d s.", n.RateLimited, secs)
}
