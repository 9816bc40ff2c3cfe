package discord

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"living-persona/internal/speech"

	"github.com/bwmarrin/discordgo"
)

const (
	maxMessageLength = 2000
	typingRefresh    = 8 * time.Second
	maxTypingDelay   = 6 * time.Second
	chunkGap         = 200 * time.Millisecond
)

// channelAPI is the slice of *discordgo.Session the sink needs.
type channelAPI interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// Sink types for a while, then posts the utterance to the current channel.
// A cancelled utterance is dropped while still typing, or cut between
// chunks once sending has started.
type Sink struct {
	api     channelAPI
	perRune time.Duration

	mu        sync.Mutex
	channelID string
}

func NewSink(api channelAPI, channelID string, perRune time.Duration) *Sink {
	return &Sink{api: api, channelID: channelID, perRune: perRune}
}

// SetChannel moves the voice to another channel.
func (s *Sink) SetChannel(id string) {
	s.mu.Lock()
	s.channelID = id
	s.mu.Unlock()
}

func (s *Sink) Channel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

// Speak implements speech.Sink.
func (s *Sink) Speak(ctx context.Context, id, text string) error {
	channelID := s.Channel()
	if channelID == "" {
		return nil
	}

	delay := min(time.Duration(utf8.RuneCountInString(text))*s.perRune, maxTypingDelay)
	if delay > 0 {
		done := make(chan struct{})
		go keepTyping(s.api, channelID, done)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
			close(done)
		case <-ctx.Done():
			t.Stop()
			close(done)
			return speech.ErrCancelled
		}
	}

	for i, chunk := range splitMessage(text, maxMessageLength) {
		if i > 0 {
			select {
			case <-time.After(chunkGap):
			case <-ctx.Done():
				return speech.ErrCancelled
			}
		}
		if _, err := s.api.ChannelMessageSend(channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func keepTyping(api channelAPI, channelID string, done <-chan struct{}) {
	_ = api.ChannelTyping(channelID)
	ticker := time.NewTicker(typingRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = api.ChannelTyping(channelID)
		}
	}
}

func splitMessage(msg string, limit int) []string {
	var result []string
	for len(msg) > limit {
		cut := strings.LastIndex(msg[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
		}
		result = append(result, strings.TrimSpace(msg[:cut]))
		msg = strings.TrimSpace(msg[cut:])
	}
	if msg != "" {
		result = append(result, msg)
	}
	return result
}
