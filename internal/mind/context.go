package mind

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/keshon/gremlin/internal/config"
	"github.com/keshon/gremlin/internal/persona"
)

const (
	CharsPerToken = 4

	historyHeader      = "Recent chat messages:"
	historyPlaceholder = "(no recent messages)"
	fallbackDirective  = "Reply to the conversation with one fitting message."

	serviceNoticeMaxRunes = 160
	focusMaxRunes         = 400
)

// Service notices are only recognised in short messages; a long message that
// merely mentions "joined the server" is real conversation.
var serviceNoticeRe = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(joined|left) the (chat|group|server|channel|call)\b`),
	regexp.MustCompile(`(?i)\b(added|removed|kicked) .+ (to|from) the (chat|group|server|channel)\b`),
	regexp.MustCompile(`(?i)\bpinned (a|the) message\b`),
	regexp.MustCompile(`(?i)\bchanged the (chat|group|channel|server) (title|name|photo|icon)\b`),
	regexp.MustCompile(`(?i)\bstarted a thread\b`),
	regexp.MustCompile(`(?i)(вступил|вступила|покинул|покинула|присоединил|присоединила)(ся|ась)? (в|к)? ?(чат|групп)`),
	regexp.MustCompile(`(?i)(закрепил|закрепила) сообщение`),
	regexp.MustCompile(`(?i)изменил(а)? (название|фото) (чата|группы)`),
}

// AssembleInput is everything Assemble needs.
type AssembleInput struct {
	SystemPrompt string
	Turns        []ChatTurn
	MaxTurns     int // trailing turns considered; <= 0 considers none
	MaxTokens    int // soft prompt budget; 0 = unbounded
	ClosingText  string
	// ExtractQuestion moves the newest non-automated entry out of the history
	// and makes it the final directive.
	ExtractQuestion bool
	BotName         string // label for automated turns without a speaker
}

// EstimateTokens approximates tokens as ceil(runes/4).
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + CharsPerToken - 1) / CharsPerToken
}

type entry struct {
	speaker   string
	text      string
	automated bool
}

func (e entry) line() string {
	return e.speaker + ": " + e.text
}

// Assemble builds a token-bounded prompt from raw turns. It is pure and never
// mutates the turns.
func Assemble(in AssembleInput) PromptPlan {
	entries := mergeTurns(filterTurns(tailTurns(in.Turns, in.MaxTurns), in.BotName))

	directive := ""
	if in.ExtractQuestion && len(entries) > 0 && !entries[len(entries)-1].automated {
		last := entries[len(entries)-1]
		entries = entries[:len(entries)-1]
		directive = last.line()
		if c := strings.TrimSpace(in.ClosingText); c != "" {
			directive += "\n\n" + c
		}
	}
	if directive == "" {
		directive = strings.TrimSpace(in.ClosingText)
	}
	if directive == "" {
		directive = fallbackDirective
	}

	plan := PromptPlan{SystemPrompt: in.SystemPrompt, FinalDirective: directive}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.line())
	}

	if in.MaxTokens <= 0 {
		if len(lines) == 0 {
			plan.HistoryBlock = historyHeader + "\n" + historyPlaceholder
			return plan
		}
		plan.HistoryBlock = historyHeader + "\n" + strings.Join(lines, "\n")
		plan.HistoryLines = len(lines)
		return plan
	}

	remaining := in.MaxTokens - EstimateTokens(in.SystemPrompt) - EstimateTokens(directive)
	headerCost := EstimateTokens(historyHeader)

	used := headerCost
	start := len(lines)
	for start > 0 {
		cost := EstimateTokens(lines[start-1])
		if used+cost > remaining {
			break
		}
		used += cost
		start--
	}
	kept := lines[start:]

	switch {
	case len(kept) > 0:
		plan.HistoryBlock = historyHeader + "\n" + strings.Join(kept, "\n")
		plan.HistoryLines = len(kept)
	case headerCost+EstimateTokens(historyPlaceholder) <= remaining:
		plan.HistoryBlock = historyHeader + "\n" + historyPlaceholder
	case headerCost <= remaining:
		plan.HistoryBlock = historyHeader
	}
	return plan
}

func tailTurns(turns []ChatTurn, maxTurns int) []ChatTurn {
	if maxTurns <= 0 {
		return nil
	}
	if len(turns) > maxTurns {
		return turns[len(turns)-maxTurns:]
	}
	return turns
}

func filterTurns(turns []ChatTurn, botName string) []entry {
	out := make([]entry, 0, len(turns))
	for _, t := range turns {
		text := strings.Join(strings.Fields(t.Text), " ")
		if text == "" || strings.HasPrefix(text, "/") || isServiceNotice(text) {
			continue
		}
		speaker := strings.TrimSpace(t.Speaker)
		if speaker == "" {
			speaker = "unknown"
			if t.IsAutomated {
				speaker = botName
				if speaker == "" {
					speaker = "bot"
				}
			}
		}
		out = append(out, entry{speaker: speaker, text: text, automated: t.IsAutomated})
	}
	return out
}

func isServiceNotice(text string) bool {
	if utf8.RuneCountInString(text) > serviceNoticeMaxRunes {
		return false
	}
	for _, re := range serviceNoticeRe {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func mergeTurns(in []entry) []entry {
	out := make([]entry, 0, len(in))
	for _, e := range in {
		if n := len(out); n > 0 && out[n-1].speaker == e.speaker && out[n-1].automated == e.automated {
			out[n-1].text += " " + e.text
			continue
		}
		out = append(out, e)
	}
	return out
}

// TrimToChars truncates s to maxChars runes, appending an ellipsis when cut.
func TrimToChars(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	return string(r[:maxChars]) + "…"
}

// BuildSystemPrompt composes the chat persona prompt. focus, when set, is the
// user's question the reply must address.
func BuildSystemPrompt(conf config.ChatConfig, style persona.Style, focus string) string {
	var b strings.Builder
	b.WriteString("You are a member of a group chat. ")
	b.WriteString(fmt.Sprintf("Current style: %s, aggressiveness: %d/10. ", style.Name, conf.Tone))
	b.WriteString(fmt.Sprintf("Profanity: %s. ", conf.Profanity))
	b.WriteString("Keep it short and to the point. No preambles or disclaimers.")

	if focus = sanitizeFocus(focus); focus != "" {
		b.WriteString(" You are answering a specific question from a user: \"")
		b.WriteString(focus)
		b.WriteString("\". Give a direct, substantive answer.")
	}

	if p := strings.TrimSpace(style.Prompt); p != "" {
		b.WriteString("\n\n")
		b.WriteString(p)
	}
	return b.String()
}

func sanitizeFocus(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, `"`, "'")
	return TrimToChars(s, focusMaxRunes)
}
