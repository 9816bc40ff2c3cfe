// Package jobmgr runs named background loops with cancellation and a clean
// shutdown.
//
//	jm := jobmgr.NewManager(log)
//	_ = jm.Start("engagement", func(ctx context.Context) error {
//	    return engine.Run(ctx, time.Second)
//	})
//	...
//	jm.Shutdown() // cancels every job and waits for it to return
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// ErrRunning is returned when a job name is already taken.
var ErrRunning = errors.New("job already running")

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager tracks running jobs. It is safe for concurrent use.
type Manager struct {
	log  zerolog.Logger
	base context.Context
	stop context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

func NewManager(log zerolog.Logger) *Manager {
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		log:  log.With().Str("component", "jobs").Logger(),
		base: base,
		stop: stop,
		jobs: make(map[string]*job),
	}
}

// Start runs fn in its own goroutine under name. The job's context is
// cancelled by Stop or Shutdown. A job that returns context.Canceled is
// considered to have stopped cleanly.
func (m *Manager) Start(name string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrRunning, name)
	}
	if m.base.Err() != nil {
		return fmt.Errorf("jobmgr: shut down")
	}
	ctx, cancel := context.WithCancel(m.base)
	j := &job{cancel: cancel, done: make(chan struct{})}
	m.jobs[name] = j
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer close(j.done)
		m.log.Debug().Str("job", name).Msg("running")
		err := fn(ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			m.log.Debug().Str("job", name).Msg("done")
		default:
			m.log.Error().Err(err).Str("job", name).Msg("failed")
		}
		m.mu.Lock()
		if m.jobs[name] == j {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
		cancel()
	}()
	return nil
}

// Stop cancels a job and waits for it to return.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	j, ok := m.jobs[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("jobmgr: job %q not running", name)
	}
	j.cancel()
	<-j.done
	return nil
}

// List returns the sorted names of running jobs.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Shutdown cancels every job and waits for all of them.
func (m *Manager) Shutdown() {
	m.stop()
	m.wg.Wait()
}
