package mind

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// t0 is a Sunday afternoon.
var t0 = time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

type memStore struct {
	mu      sync.Mutex
	life    *LifeState
	lifeErr error
	rels    map[string]Relationship
	hist    map[string][]Utterance
}

func newMemStore() *memStore {
	return &memStore{rels: map[string]Relationship{}, hist: map[string][]Utterance{}}
}

func (m *memStore) LoadLife() (LifeState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lifeErr != nil {
		return LifeState{}, m.lifeErr
	}
	if m.life == nil {
		return LifeState{}, ErrNoRecord
	}
	return m.life.Clone(), nil
}

func (m *memStore) SaveLife(s LifeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s.Clone()
	m.life = &c
	m.lifeErr = nil
	return nil
}

func (m *memStore) LoadRelationship(id string) (Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rels[id]
	if !ok {
		return Relationship{}, ErrNoRecord
	}
	return r, nil
}

func (m *memStore) SaveRelationship(r Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rels[r.UserID] = r
	return nil
}

func (m *memStore) LoadHistory(id string) ([]Utterance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hist[id]
	if !ok {
		return nil, ErrNoRecord
	}
	return append([]Utterance(nil), h...), nil
}

func (m *memStore) SaveHistory(id string, h []Utterance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hist[id] = append([]Utterance(nil), h...)
	return nil
}

func (m *memStore) Forget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rels, id)
	delete(m.hist, id)
	return nil
}

func (m *memStore) savedLife() LifeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.life.Clone()
}

func (m *memStore) savedRel(id string) Relationship {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rels[id]
}

// fakeSpeaker records calls and never actually plays anything.
type fakeSpeaker struct {
	mu    sync.Mutex
	busy  bool
	calls []string
}

func (f *fakeSpeaker) Speak(_ context.Context, text string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "speak:"+text)
	return "id"
}

func (f *fakeSpeaker) Then(_ context.Context, text string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "then:"+text)
	return "id"
}

func (f *fakeSpeaker) Interrupt() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.busy
	f.busy = false
	return was
}

func (f *fakeSpeaker) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

func (f *fakeSpeaker) setBusy(b bool) {
	f.mu.Lock()
	f.busy = b
	f.mu.Unlock()
}

func (f *fakeSpeaker) said() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// seededLife is a valid awake state at t0.
func seededLife() LifeState {
	return LifeState{
		Mood:         50,
		Energy:       80,
		Activity:     "reading a new opera script",
		Location:     "study",
		LastUpdateAt: t0,
		LastSwitchAt: t0,
		LastActiveAt: t0,
	}
}

func fixedPicker(sc Scene) ScenePicker {
	return func(time.Time, LifeState) Scene { return sc }
}

type harness struct {
	engine  *Engine
	store   *memStore
	speaker *fakeSpeaker
	clock   *fakeClock
	cfg     Config
}

func newHarness(t *testing.T, oracle DialogueOracle, tweak func(*Config, *memStore)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	store := newMemStore()
	life := seededLife()
	store.life = &life
	if tweak != nil {
		tweak(&cfg, store)
	}
	h := &harness{store: store, speaker: &fakeSpeaker{}, clock: &fakeClock{now: t0}, cfg: cfg}
	e, err := NewEngine(Options{
		Config:  cfg,
		Store:   store,
		Oracle:  oracle,
		Speaker: h.speaker,
		Rand:    rand.New(rand.NewSource(1)),
		Clock:   h.clock.Now,
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Close)
	h.engine = e
	return h
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
