// Package moderation cleans generated text before it is sent to a chat.
package moderation

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Policies accepted by Apply. Unknown values behave like PolicySoft.
const (
	PolicyOff    = "off"
	PolicySoft   = "soft"
	PolicyStrict = "strict"
)

var (
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	massMention  = regexp.MustCompile(`@(everyone|here)\b`)
)

var defaultBlocklist = []string{
	"fuck", "shit", "bitch", "cunt", "asshole", "motherfucker",
	"блять", "бля", "сука", "хуй", "пизд", "ебать", "ебан",
}

// Filter strips markup and, depending on policy, masks blocked words.
type Filter struct {
	policy    *bluemonday.Policy
	blocklist []string
}

func New(extra ...string) *Filter {
	words := append([]string(nil), defaultBlocklist...)
	for _, w := range extra {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}
	return &Filter{policy: bluemonday.StrictPolicy(), blocklist: words}
}

// Apply never fails; at worst it returns the input trimmed.
func (f *Filter) Apply(text, policy string) string {
	text = strings.TrimSpace(text)
	if text == "" || policy == PolicyOff {
		return text
	}

	text = html.UnescapeString(f.policy.Sanitize(text))
	text = massMention.ReplaceAllString(text, "@\u200b$1")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")

	if policy == PolicyStrict {
		text = f.mask(text)
	}
	return strings.TrimSpace(text)
}

// mask replaces every word containing a blocked stem with its first rune and asterisks.
func (f *Filter) mask(text string) string {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' })
	seen := make(map[string]bool, len(fields))
	for _, word := range fields {
		if seen[word] {
			continue
		}
		seen[word] = true
		lw := strings.ToLower(word)
		for _, stem := range f.blocklist {
			if strings.Contains(lw, stem) {
				text = strings.ReplaceAll(text, word, stars(word))
				break
			}
		}
	}
	return text
}

func stars(word string) string {
	r := []rune(word)
	if len(r) <= 1 {
		return "*"
	}
	return string(r[0]) + strings.Repeat("*", len(r)-1)
}
