// Package storage persists the persona's life state, relationships and
// conversation history.
package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"living-persona/internal/mind"

	"github.com/rs/zerolog"
)

// Store is a mind.Persistence that owns resources.
type Store interface {
	mind.Persistence
	// Users lists every user with a stored relationship, sorted.
	Users() ([]string, error)
	// Forget drops the relationship and history of userID.
	Forget(userID string) error
	Close() error
}

// Open returns the backend named by kind: "json", "sqlite" or "memory".
func Open(kind, path string, log zerolog.Logger) (Store, error) {
	switch strings.ToLower(kind) {
	case "json", "":
		return OpenJSON(path, log)
	case "sqlite":
		return OpenSQLite(path, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", kind)
	}
}

func notFound(what string) error {
	return fmt.Errorf("%w: %s", mind.ErrNoRecord, what)
}

// Memory keeps everything in process. It is meant for tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	life    *mind.LifeState
	rels    map[string]mind.Relationship
	history map[string][]mind.Utterance
}

func NewMemory() *Memory {
	return &Memory{rels: map[string]mind.Relationship{}, history: map[string][]mind.Utterance{}}
}

func (m *Memory) LoadLife() (mind.LifeState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.life == nil {
		return mind.LifeState{}, notFound("life")
	}
	return m.life.Clone(), nil
}

func (m *Memory) SaveLife(s mind.LifeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s.Clone()
	m.life = &c
	return nil
}

func (m *Memory) LoadRelationship(userID string) (mind.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rels[userID]
	if !ok {
		return mind.Relationship{}, notFound("relationship " + userID)
	}
	return r, nil
}

func (m *Memory) SaveRelationship(r mind.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rels[r.UserID] = r
	return nil
}

func (m *Memory) LoadHistory(userID string) ([]mind.Utterance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.history[userID]
	if !ok {
		return nil, notFound("history " + userID)
	}
	return append([]mind.Utterance(nil), h...), nil
}

func (m *Memory) SaveHistory(userID string, h []mind.Utterance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[userID] = append([]mind.Utterance(nil), h...)
	return nil
}

func (m *Memory) Users() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.rels))
	for id := range m.rels {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Forget(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rels, userID)
	delete(m.history, userID)
	return nil
}

func (m *Memory) Close() error { return nil }
