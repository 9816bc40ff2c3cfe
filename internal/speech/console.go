package speech

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"
)

// ConsoleSink prints each utterance and then holds the lane for as long as
// it would take to read it aloud.
type ConsoleSink struct {
	mu      sync.Mutex
	w       io.Writer
	name    string
	perRune time.Duration
}

// NewConsoleSink writes lines prefixed with the persona's name.
func NewConsoleSink(w io.Writer, name string, perRune time.Duration) *ConsoleSink {
	return &ConsoleSink{w: w, name: name, perRune: perRune}
}

func (s *ConsoleSink) Speak(ctx context.Context, id, text string) error {
	s.mu.Lock()
	_, err := fmt.Fprintf(s.w, "%s: %s\n", s.name, text)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	d := time.Duration(utf8.RuneCountInString(text)) * s.perRune
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		fmt.Fprintf(s.w, "%s: ...\n", s.name)
		s.mu.Unlock()
		return ErrCancelled
	}
}
