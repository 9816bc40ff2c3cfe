package mind

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// History is a bounded conversation log, oldest first.
type History struct {
	limit int
	items []Utterance
}

func NewHistory(limit int, items []Utterance) *History {
	if limit <= 0 {
		limit = 60
	}
	h := &History{limit: limit}
	for _, u := range items {
		h.Push(u)
	}
	return h
}

// Push appends u and drops the oldest entries beyond the limit.
func (h *History) Push(u Utterance) {
	h.items = append(h.items, u)
	if over := len(h.items) - h.limit; over > 0 {
		h.items = append([]Utterance(nil), h.items[over:]...)
	}
}

// Items returns a copy of the log.
func (h *History) Items() []Utterance {
	return append([]Utterance(nil), h.items...)
}

// Len is the number of stored utterances.
func (h *History) Len() int { return len(h.items) }

// RecentPersona returns up to n of the persona's latest lines, newest last.
// User turns in between do not count towards n.
func (h *History) RecentPersona(n int) []string {
	var out []string
	for i := len(h.items) - 1; i >= 0 && len(out) < n; i-- {
		if h.items[i].Role == RolePersona {
			out = append(out, h.items[i].Text)
		}
	}
	slices.Reverse(out)
	return out
}

// minOverlapRunes keeps very short earlier lines from swallowing new ones.
const minOverlapRunes = 8

// IsRepeat reports whether candidate duplicates one of the recent lines:
// equal after normalisation, contained in one, or containing a long one.
func IsRepeat(candidate string, recent []string) bool {
	c := normalizeLine(candidate)
	if c == "" {
		return false
	}
	for _, r := range recent {
		p := normalizeLine(r)
		if p == "" {
			continue
		}
		if c == p || strings.Contains(p, c) {
			return true
		}
		if utf8.RuneCountInString(p) >= minOverlapRunes && strings.Contains(c, p) {
			return true
		}
	}
	return false
}

func normalizeLine(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
