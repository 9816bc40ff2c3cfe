// Package speech delivers the persona's utterances one at a time.
//
// A Controller owns a single lane. Speak preempts the lane: whatever is
// playing is cancelled and awaited before the new utterance starts. Then
// appends to the lane and starts once the previous utterance is done.
// Interrupt cancels everything in the lane and waits until it is silent.
//
//	c := speech.NewController(speech.NewConsoleSink(os.Stdout, 40*time.Millisecond), log)
//	c.Speak(ctx, "Hello!")
//	c.Then(ctx, "And one more thing...")
package speech

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrCancelled is what a Sink returns when an utterance was cut short.
var ErrCancelled = errors.New("utterance cancelled")

// Sink plays one utterance and returns when it has finished or ctx is done.
type Sink interface {
	Speak(ctx context.Context, id, text string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, id, text string) error

func (f SinkFunc) Speak(ctx context.Context, id, text string) error { return f(ctx, id, text) }

type task struct {
	id   string
	text string
	done chan struct{}
}

// Controller enforces at most one utterance in flight. It is safe for
// concurrent use.
type Controller struct {
	sink Sink
	log  zerolog.Logger

	mu        sync.Mutex
	lane      context.Context
	cancelAll context.CancelFunc
	tasks     []*task
}

func NewController(sink Sink, log zerolog.Logger) *Controller {
	return &Controller{sink: sink, log: log.With().Str("component", "speech").Logger()}
}

// Speak cancels anything in flight, waits for silence and starts text.
// It returns the utterance id.
func (c *Controller) Speak(ctx context.Context, text string) string {
	c.Interrupt()
	return c.Then(ctx, text)
}

// Then queues text behind the utterance currently in the lane.
func (c *Controller) Then(ctx context.Context, text string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lane == nil {
		c.lane, c.cancelAll = context.WithCancel(context.Background())
	}
	t := &task{id: uuid.NewString(), text: text, done: make(chan struct{})}
	prior := append([]*task(nil), c.tasks...)
	c.tasks = append(c.tasks, t)
	lane := c.lane

	go c.run(ctx, lane, prior, t)
	return t.id
}

// run plays t once every earlier task has finished.
func (c *Controller) run(ctx, lane context.Context, prior []*task, t *task) {
	defer c.finish(t)

	for _, p := range prior {
		select {
		case <-p.done:
		case <-lane.Done():
			return
		case <-ctx.Done():
			return
		}
	}

	runCtx, cancel := context.WithCancel(lane)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if runCtx.Err() != nil {
		return
	}
	c.log.Debug().Str("id", t.id).Str("text", t.text).Msg("speaking")
	err := c.sink.Speak(runCtx, t.id, t.text)
	switch {
	case err == nil:
	case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		c.log.Debug().Str("id", t.id).Msg("utterance cut short")
	default:
		c.log.Warn().Err(err).Str("id", t.id).Msg("sink failed")
	}
}

func (c *Controller) finish(t *task) {
	c.mu.Lock()
	for i, x := range c.tasks {
		if x == t {
			c.tasks = append(c.tasks[:i], c.tasks[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(t.done)
}

// Interrupt cancels every queued and playing utterance and blocks until all
// of them have stopped. It reports whether anything was in flight.
func (c *Controller) Interrupt() bool {
	c.mu.Lock()
	pending := append([]*task(nil), c.tasks...)
	if c.cancelAll != nil {
		c.cancelAll()
	}
	c.lane, c.cancelAll = nil, nil
	c.mu.Unlock()

	for _, t := range pending {
		<-t.done
	}
	if len(pending) > 0 {
		c.log.Debug().Int("cancelled", len(pending)).Msg("interrupted")
	}
	return len(pending) > 0
}

// Busy reports whether an utterance is playing or queued.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks) > 0
}

// Wait blocks until the lane is silent or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		var t *task
		if len(c.tasks) > 0 {
			t = c.tasks[len(c.tasks)-1]
		}
		c.mu.Unlock()
		if t == nil {
			return nil
		}
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
