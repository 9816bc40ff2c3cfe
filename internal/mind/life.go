package mind

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scene is an activity at a location.
type Scene struct {
	Activity string
	Location string
}

// ScenePicker chooses a fresh scene for the given moment and state. It is
// called with the store lock held and must not call back into the store.
type ScenePicker func(now time.Time, s LifeState) Scene

// Placeholders shown while travelling.
const (
	TransitLocation = "in transit"
	transitPrefix   = "on the way to "
)

var (
	sleepMarkers = []string{"sleep", "nap", "dream", "bed", "睡", "梦"}
	homeMarkers  = []string{"home", "bedroom", "bathroom", "study", "kitchen", "家", "卧室", "浴室", "书房", "厨房"}
)

// Exhaustion fallbacks.
var (
	exhaustedScene = Scene{Activity: "collapsing into bed, completely exhausted", Location: "bedroom"}
	homeLocation   = "home"
)

// IsSleeping reports whether an activity counts as sleep for recovery.
func IsSleeping(activity string) bool { return containsAny(activity, sleepMarkers) }

func isHome(location string) bool { return containsAny(location, homeMarkers) }

func containsAny(s string, subs []string) bool {
	l := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

// LifeStore owns the single LifeState. Every read applies the time elapsed
// since the previous one, so values never depend on how often it is polled.
type LifeStore struct {
	mu     sync.Mutex
	cfg    Config
	state  LifeState
	store  Persistence
	picker ScenePicker
	log    zerolog.Logger
}

// NewLifeStore loads the persisted state or seeds a fresh one. A missing or
// corrupt record never fails construction. When the persona was left alone
// for longer than OfflineReset the scene is re-picked for now.
func NewLifeStore(cfg Config, store Persistence, picker ScenePicker, now time.Time, log zerolog.Logger) *LifeStore {
	l := &LifeStore{cfg: cfg, store: store, picker: picker, log: log.With().Str("component", "life").Logger()}

	s, err := store.LoadLife()
	switch {
	case errors.Is(err, ErrNoRecord):
		l.log.Info().Msg("no saved life state, seeding")
		s = l.seed(now)
	case err != nil:
		l.log.Warn().Err(err).Msg("saved life state unreadable, seeding")
		s = l.seed(now)
	case !s.Valid():
		l.log.Warn().Msg("saved life state invalid, seeding")
		s = l.seed(now)
	}
	l.state = s

	if offline := now.Sub(s.LastActiveAt); !s.LastActiveAt.IsZero() && offline > cfg.OfflineReset {
		sc := picker(now, l.state)
		l.log.Info().Dur("offline", offline).Str("activity", sc.Activity).Msg("long absence, re-picking scene")
		l.state.Activity, l.state.Location = sc.Activity, sc.Location
		l.state.HeldItem = NoItem
		l.state.Travel = nil
		l.state.LastSwitchAt = now
		l.state.TurnsSinceSwitch = 0
		l.state.LastActiveAt = now
	}
	l.advance(now)
	l.persist()
	return l
}

func (l *LifeStore) seed(now time.Time) LifeState {
	s := LifeState{
		Mood:         l.cfg.MoodBaseline,
		Energy:       80,
		LastUpdateAt: now,
		LastSwitchAt: now,
		LastActiveAt: now,
	}
	sc := l.picker(now, s)
	s.Activity, s.Location = sc.Activity, sc.Location
	return s
}

// Snapshot returns the state without advancing time.
func (l *LifeStore) Snapshot() LifeState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// Tick applies elapsed-time effects up to now and returns the result.
func (l *LifeStore) Tick(now time.Time) LifeState {
	s, _ := l.Update(now, nil)
	return s
}

// Mutate applies elapsed time, then deltas and an optional forced activity.
func (l *LifeStore) Mutate(now time.Time, moodDelta, energyDelta float64, forcedActivity string) LifeState {
	s, _ := l.Update(now, func(s *LifeState) bool {
		s.Mood += moodDelta
		s.Energy += energyDelta
		if forcedActivity != "" {
			s.Activity = forcedActivity
			s.Travel = nil
		}
		return true
	})
	return s
}

// StartTravel puts the persona in transit towards destination. pending is the
// activity committed on arrival.
func (l *LifeStore) StartTravel(now time.Time, destination, pending string) LifeState {
	s, _ := l.Update(now, func(s *LifeState) bool {
		beginTravel(s, now, destination, pending)
		return true
	})
	return s
}

func beginTravel(s *LifeState, now time.Time, destination, pending string) {
	s.Travel = &Travel{Destination: destination, PendingActivity: pending, StartedAt: now}
	s.Activity = transitPrefix + destination
	s.Location = TransitLocation
	s.HeldItem = NoItem
}

// Update applies elapsed time and then fn under the store lock. Values are
// clamped after fn and the result is persisted. fn may be nil; its return
// value is passed through as the second result.
func (l *LifeStore) Update(now time.Time, fn func(s *LifeState) bool) (LifeState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.advance(now)
	changed := false
	if fn != nil {
		changed = fn(&l.state)
		l.state.Mood = clamp100(l.state.Mood)
		l.state.Energy = clamp100(l.state.Energy)
	}
	l.persist()
	return l.state.Clone(), changed
}

// advance applies decay, recovery, arrival and the exhaustion guard.
func (l *LifeStore) advance(now time.Time) {
	s := &l.state
	elapsed := now.Sub(s.LastUpdateAt)
	if elapsed > 0 {
		minutes := elapsed.Minutes()
		sleeping := IsSleeping(s.Activity)

		if sleeping {
			if s.Mood < l.cfg.SleepMoodBaseline {
				s.Mood = min(l.cfg.SleepMoodBaseline, s.Mood+l.cfg.MoodDriftPerMinute/2*minutes)
			}
		} else {
			s.Mood = driftToward(s.Mood, l.cfg.MoodBaseline, l.cfg.MoodDriftPerMinute*minutes)
		}

		mult := 1.0
		if sleeping {
			mult = l.cfg.SleepRecoverMultiplier
		}
		s.Energy += l.cfg.EnergyRecoverPerMinute * minutes * mult

		s.Mood = clamp100(s.Mood)
		s.Energy = clamp100(s.Energy)
		s.LastUpdateAt = now
	}

	if s.Travel != nil && now.Sub(s.Travel.StartedAt) >= l.cfg.TransitDuration {
		l.log.Info().Str("destination", s.Travel.Destination).Str("activity", s.Travel.PendingActivity).Msg("arrived")
		s.Activity = s.Travel.PendingActivity
		s.Location = s.Travel.Destination
		s.Travel = nil
		s.LastSwitchAt = now
		s.TurnsSinceSwitch = 0
	}

	if s.Energy < l.cfg.ExhaustionFloor && !IsSleeping(s.Activity) && s.Travel == nil {
		if isHome(s.Location) {
			l.log.Info().Float64("energy", s.Energy).Msg("exhausted, going to sleep")
			s.Activity, s.Location = exhaustedScene.Activity, exhaustedScene.Location
			s.HeldItem = NoItem
			s.LastSwitchAt = now
			s.TurnsSinceSwitch = 0
		} else {
			l.log.Info().Float64("energy", s.Energy).Str("from", s.Location).Msg("exhausted, heading home")
			beginTravel(s, now, homeLocation, exhaustedScene.Activity)
		}
	}
}

func driftToward(v, target, step float64) float64 {
	if v > target {
		return max(target, v-step)
	}
	return min(target, v+step)
}

func (l *LifeStore) persist() {
	if err := l.store.SaveLife(l.state.Clone()); err != nil {
		l.log.Error().Err(err).Msg("save life state")
	}
}
