// Package arbitrator collects message fragments from several senders and,
// once a sender has gone quiet, picks the single message worth answering.
//
// Senders often type one thought as several short messages. Fragments are
// buffered per sender and become a candidate after a quiet period. When more
// than one candidate is ready, the best one wins and the others are dropped:
// a single voice cannot answer everybody at once.
package arbitrator

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Candidate is a sender's merged message.
type Candidate struct {
	Sender    string
	Text      string
	Score     float64
	Fragments int
	LastAt    time.Time
}

type buffer struct {
	parts  []string
	score  float64
	lastAt time.Time
}

// Arbitrator is safe for concurrent use.
type Arbitrator struct {
	quiet  time.Duration
	joiner string
	log    zerolog.Logger

	mu   sync.Mutex
	bufs map[string]*buffer
}

// New returns an arbitrator that waits quiet after a sender's last fragment.
func New(quiet time.Duration, log zerolog.Logger) *Arbitrator {
	return &Arbitrator{
		quiet:  quiet,
		joiner: ", ",
		log:    log.With().Str("component", "arbitrator").Logger(),
		bufs:   make(map[string]*buffer),
	}
}

// Add buffers a fragment. score is the sender's current priority; the
// latest value wins.
func (a *Arbitrator) Add(sender, text string, score float64, now time.Time) {
	text = strings.TrimSpace(text)
	if sender == "" || text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.bufs[sender]
	if !ok {
		b = &buffer{}
		a.bufs[sender] = b
	}
	b.parts = append(b.parts, text)
	b.score = score
	b.lastAt = now
}

// Pending is the number of senders with buffered fragments.
func (a *Arbitrator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.bufs)
}

// Select returns the best ready candidate and drops every other ready one.
// Senders still typing stay buffered. Ties on score go to the longer
// message, then to the most recent.
func (a *Arbitrator) Select(now time.Time) (Candidate, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var ready []Candidate
	for sender, b := range a.bufs {
		if now.Sub(b.lastAt) < a.quiet {
			continue
		}
		ready = append(ready, Candidate{
			Sender:    sender,
			Text:      strings.Join(b.parts, a.joiner),
			Score:     b.score,
			Fragments: len(b.parts),
			LastAt:    b.lastAt,
		})
		delete(a.bufs, sender)
	}
	if len(ready) == 0 {
		return Candidate{}, false
	}

	sort.Slice(ready, func(i, j int) bool { return better(ready[i], ready[j]) })
	for _, c := range ready[1:] {
		a.log.Info().Str("sender", c.Sender).Str("text", c.Text).Msg("dropped, another message took the turn")
	}
	return ready[0], true
}

func better(x, y Candidate) bool {
	if x.Score != y.Score {
		return x.Score > y.Score
	}
	lx, ly := utf8.RuneCountInString(x.Text), utf8.RuneCountInString(y.Text)
	if lx != ly {
		return lx > ly
	}
	if !x.LastAt.Equal(y.LastAt) {
		return x.LastAt.After(y.LastAt)
	}
	return x.Sender < y.Sender
}

// Drain polls Select every interval and hands each winner to fn until ctx
// is done. fn runs on the calling goroutine, so turns never overlap.
func (a *Arbitrator) Drain(ctx context.Context, every time.Duration, clock func() time.Time, fn func(ctx context.Context, c Candidate)) error {
	if clock == nil {
		clock = time.Now
	}
	if every <= 0 {
		every = 100 * time.Millisecond
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if c, ok := a.Select(clock()); ok {
				fn(ctx, c)
			}
		}
	}
}
