package retrylimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(n int) Policy {
	p := DefaultPolicy()
	p.MaxAttempts = n
	p.InitialDelay = time.Millisecond
	p.MaxDelay = 2 * time.Millisecond
	p.Jitter = false
	return p
}

func TestDo_RetriesServerErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{Code: 503}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_StopsOnClientError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), nil, func(context.Context) error {
		calls++
		return &StatusError{Code: 401}
	})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 401 {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_Permanent(t *testing.T) {
	boom := errors.New("bad request body")
	calls := 0
	err := Do(context.Background(), fastPolicy(5), nil, func(context.Context) error {
		calls++
		return &Permanent{Err: boom}
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Errorf("err = %v calls = %d", err, calls)
	}
}

func TestDo_GivesUp(t *testing.T) {
	boom := errors.New("flaky")
	err := Do(context.Background(), fastPolicy(2), nil, func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped flaky", err)
	}
}

func TestAdaptiveLimiter_ThrottleLowersRate(t *testing.T) {
	lim := NewAdaptiveLimiter(4, 1, 8, 1, 0.5)
	lim.Throttled()
	if got := lim.Limit(); got != 2 {
		t.Errorf("limit = %v, want 2", got)
	}
	lim.Throttled()
	lim.Throttled()
	if got := lim.Limit(); got != 1 {
		t.Errorf("limit = %v, want floor 1", got)
	}
}
