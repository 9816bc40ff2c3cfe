package mind

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newScheduler(t *testing.T, catalog Catalog, s LifeState) (*ActivityScheduler, *LifeStore) {
	t.Helper()
	cfg := DefaultConfig()
	acts := NewActivityScheduler(cfg, catalog, rand.New(rand.NewSource(7)), zerolog.Nop())
	store := newMemStore()
	store.life = &s
	life := NewLifeStore(cfg, store, acts.Pick, t0, zerolog.Nop())
	acts.Bind(life)
	return acts, life
}

func TestBucketAt_WrapsMidnight(t *testing.T) {
	acts := NewActivityScheduler(DefaultConfig(), DefaultCatalog(), nil, zerolog.Nop())
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := map[int]string{23: "late-night", 2: "late-night", 5: "early-morning", 8: "morning", 12: "noon", 15: "afternoon", 20: "evening"}
	for hour, want := range tests {
		if got := acts.BucketAt(day.Add(time.Duration(hour) * time.Hour)).Name; got != want {
			t.Errorf("hour %d: bucket %q, want %q", hour, got, want)
		}
	}
}

func TestCandidates_LowEnergyNarrowsToRest(t *testing.T) {
	acts := NewActivityScheduler(DefaultConfig(), DefaultCatalog(), nil, zerolog.Nop())
	tired := LifeState{Energy: 10}
	got := acts.Candidates(t0, tired)
	if len(got) == 0 {
		t.Fatal("no candidates")
	}
	for _, a := range got {
		if !containsAny(a, []string{"sleep", "nap", "bath", "tea", "rain"}) {
			t.Errorf("tired candidate %q is not restful", a)
		}
	}
	if fresh := acts.Candidates(t0, LifeState{Energy: 90}); len(fresh) <= len(got) {
		t.Errorf("fresh candidates %v not wider than tired %v", fresh, got)
	}
}

func TestInferLocation(t *testing.T) {
	acts := NewActivityScheduler(DefaultConfig(), DefaultCatalog(), nil, zerolog.Nop())
	tests := map[string]string{
		"feeding pigeons at the seaside":       "seaside",
		"watching an opera from the royal box": "opera house",
		"cooking macaroni in the kitchen":      "kitchen",
		"hugging a seal plushie in bed":        "bedroom",
		"practicing magic tricks":              "home",
	}
	for act, want := range tests {
		if got := acts.InferLocation(act); got != want {
			t.Errorf("%q: location %q, want %q", act, got, want)
		}
	}
}

func TestAutoSwitch_LockThenCooldown(t *testing.T) {
	s := seededLife()
	s.LastSwitchAt = t0.Add(-time.Hour)
	acts, life := newScheduler(t, DefaultCatalog(), s)

	if ok, _ := acts.AutoSwitch(t0.Add(-30*time.Second), t0); ok {
		t.Fatal("switched inside the lock window")
	}
	ok, sc := acts.AutoSwitch(t0.Add(-3*time.Minute), t0)
	if !ok {
		t.Fatal("expected a switch once the conversation went quiet")
	}
	got := life.Snapshot()
	if sc.Activity == s.Activity || got.Activity != sc.Activity || got.Location != sc.Location {
		t.Errorf("scene = %+v, state = %q at %q", sc, got.Activity, got.Location)
	}
	if got.Mood != 55 {
		t.Errorf("mood = %v, want switch bonus to 55", got.Mood)
	}
	if !got.LastSwitchAt.Equal(t0) {
		t.Errorf("last switch = %v", got.LastSwitchAt)
	}

	if ok, _ := acts.AutoSwitch(t0.Add(-3*time.Minute), t0.Add(5*time.Minute)); ok {
		t.Error("switched again inside the cooldown")
	}
	if ok, _ := acts.AutoSwitch(t0.Add(-3*time.Minute), t0.Add(31*time.Minute)); !ok {
		t.Error("expected a switch after the cooldown")
	}
}

func TestAutoSwitch_WarmConversationUsesShortWindows(t *testing.T) {
	s := seededLife()
	s.LastSwitchAt = t0.Add(-3 * time.Minute)
	s.TurnsSinceSwitch = 5
	acts, _ := newScheduler(t, DefaultCatalog(), s)
	if ok, _ := acts.AutoSwitch(t0.Add(-15*time.Second), t0); !ok {
		t.Error("expected a warm switch after 15s of quiet")
	}
}

func TestAutoSwitch_NeverWhileTravelling(t *testing.T) {
	s := seededLife()
	s.LastSwitchAt = t0.Add(-time.Hour)
	acts, life := newScheduler(t, DefaultCatalog(), s)
	life.StartTravel(t0, "boulevard", "window shopping on the boulevard")
	if ok, _ := acts.AutoSwitch(t0.Add(-time.Hour), t0.Add(time.Second)); ok {
		t.Error("switched mid-travel")
	}
}

func TestAutoSwitch_AvoidsRepeatingActivity(t *testing.T) {
	s := seededLife()
	s.Activity = "the only thing"
	s.LastSwitchAt = t0.Add(-time.Hour)
	acts, life := newScheduler(t, Catalog{Activities: []string{"the only thing"}, DefaultLocation: "home"}, s)
	if ok, _ := acts.AutoSwitch(t0.Add(-time.Hour), t0); ok {
		t.Error("switched to the same activity")
	}
	if got := life.Snapshot(); got.Activity != "the only thing" || got.Mood != 50 {
		t.Errorf("state changed: %+v", got)
	}
}
