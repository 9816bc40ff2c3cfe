package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// recordingSink holds each utterance until ctx is done or hold elapses.
type recordingSink struct {
	hold time.Duration

	active  atomic.Int32
	maxSeen atomic.Int32

	mu        sync.Mutex
	started   []string
	finished  []string
	cancelled []string
	startedCh chan string
}

func newRecordingSink(hold time.Duration) *recordingSink {
	return &recordingSink{hold: hold, startedCh: make(chan string, 16)}
}

func (s *recordingSink) Speak(ctx context.Context, id, text string) error {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	s.mu.Lock()
	s.started = append(s.started, text)
	s.mu.Unlock()
	s.startedCh <- text

	t := time.NewTimer(s.hold)
	defer t.Stop()
	select {
	case <-t.C:
		s.mu.Lock()
		s.finished = append(s.finished, text)
		s.mu.Unlock()
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		s.cancelled = append(s.cancelled, text)
		s.mu.Unlock()
		return ErrCancelled
	}
}

func (s *recordingSink) snapshot() (started, finished, cancelled []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.started...), append([]string(nil), s.finished...), append([]string(nil), s.cancelled...)
}

func waitSilent(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("controller never went silent: %v", err)
	}
}

func TestThen_PlaysInOrderOneAtATime(t *testing.T) {
	sink := newRecordingSink(10 * time.Millisecond)
	c := NewController(sink, zerolog.Nop())

	c.Then(context.Background(), "one")
	c.Then(context.Background(), "two")
	c.Then(context.Background(), "three")
	waitSilent(t, c)

	_, finished, _ := sink.snapshot()
	if strings.Join(finished, ",") != "one,two,three" {
		t.Errorf("finished = %v", finished)
	}
	if got := sink.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent utterances = %d, want 1", got)
	}
}

func TestSpeak_PreemptsCurrentUtterance(t *testing.T) {
	sink := newRecordingSink(time.Hour)
	c := NewController(sink, zerolog.Nop())

	c.Speak(context.Background(), "long monologue")
	<-sink.startedCh

	sink.hold = 5 * time.Millisecond
	c.Speak(context.Background(), "reply")
	waitSilent(t, c)

	started, finished, cancelled := sink.snapshot()
	if strings.Join(started, ",") != "long monologue,reply" {
		t.Errorf("started = %v", started)
	}
	if len(cancelled) != 1 || cancelled[0] != "long monologue" {
		t.Errorf("cancelled = %v", cancelled)
	}
	if len(finished) != 1 || finished[0] != "reply" {
		t.Errorf("finished = %v", finished)
	}
	if got := sink.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent utterances = %d, want 1", got)
	}
}

func TestInterrupt_ReportsWhetherBusy(t *testing.T) {
	sink := newRecordingSink(time.Hour)
	c := NewController(sink, zerolog.Nop())
	if c.Interrupt() {
		t.Error("idle controller reported an interruption")
	}

	c.Then(context.Background(), "a")
	c.Then(context.Background(), "b")
	<-sink.startedCh
	if !c.Busy() {
		t.Fatal("expected busy")
	}
	if !c.Interrupt() {
		t.Error("expected interruption")
	}
	if c.Busy() {
		t.Error("still busy after interrupt")
	}
	started, _, _ := sink.snapshot()
	if len(started) != 1 {
		t.Errorf("queued utterance played after interrupt: %v", started)
	}
}

func TestThen_CallerContextCancels(t *testing.T) {
	sink := newRecordingSink(time.Hour)
	c := NewController(sink, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	c.Then(ctx, "a")
	<-sink.startedCh
	cancel()
	waitSilent(t, c)
	_, _, cancelled := sink.snapshot()
	if len(cancelled) != 1 {
		t.Errorf("cancelled = %v", cancelled)
	}
}

func TestConsoleSink_PrintsAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf, "Domme", time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := s.Speak(ctx, "id", "a rather long line")
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("err = %v", err)
	}
	if buf.String() != "Domme: a rather long line\nDomme: ...\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestHub_BroadcastsAndAcceptsInput(t *testing.T) {
	inputs := make(chan Input, 1)
	hub := NewHub(SinkFunc(func(context.Context, string, string) error { return nil }), func(in Input) { inputs <- in }, zerolog.Nop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := hub.Speak(context.Background(), "u-1", "hello"); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var types []string
	for len(types) < 2 {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.ID != "u-1" {
			t.Errorf("event id = %q", ev.ID)
		}
		types = append(types, ev.Type)
	}
	if types[0] != EventStart || types[1] != EventEnd {
		t.Errorf("events = %v", types)
	}

	if err := conn.WriteJSON(Input{User: "viewer", Text: "hi there"}); err != nil {
		t.Fatal(err)
	}
	select {
	case in := <-inputs:
		if in.User != "viewer" || in.Text != "hi there" {
			t.Errorf("input = %+v", in)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("input not delivered")
	}
}
