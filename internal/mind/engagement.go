package mind

import (
	"math/rand"
	"sync"
	"time"
)

// EngagementState is what the engagement loop concluded on a tick.
type EngagementState string

const (
	StateQuiescent      EngagementState = "quiescent"
	StateScenePending   EngagementState = "scene-pending"
	StateBoredomPending EngagementState = "boredom-pending"
)

// EngagementReason says why the persona decided to speak unprompted.
type EngagementReason string

const (
	ReasonSceneChange EngagementReason = "scene-change"
	ReasonBoredom     EngagementReason = "boredom"
)

// EngagementAttempt tracks one proactive speaking opportunity. It is reset
// whenever genuine user input arrives.
type EngagementAttempt struct {
	Reason         EngagementReason
	TurnsAttempted int
	LastAttemptAt  time.Time
}

// DefaultFocusAngles nudge idle chatter toward something concrete.
var DefaultFocusAngles = []string{
	"complain about one specific small thing happening right now",
	"describe a sound, smell or light in your surroundings",
	"suddenly recall a small memory, without explaining why",
	"say how your body feels at the moment, tired, hungry or sleepy",
	"share a small hope about later today",
	"hum a melody or make a little sound, then comment on it",
}

// Engagement is the idle timer behind proactive speech.
type Engagement struct {
	cfg    Config
	angles []string

	lastInteractionAt time.Time
	idleChatter       int
	attempt           *EngagementAttempt

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewEngagement(cfg Config, now time.Time, rng *rand.Rand) *Engagement {
	if rng == nil {
		rng = rand.New(rand.NewSource(now.UnixNano()))
	}
	return &Engagement{cfg: cfg, angles: DefaultFocusAngles, lastInteractionAt: now, rng: rng}
}

// LastInteraction is when the user or the persona last spoke.
func (g *Engagement) LastInteraction() time.Time { return g.lastInteractionAt }

// Idle is the time since the last interaction.
func (g *Engagement) Idle(now time.Time) time.Duration { return now.Sub(g.lastInteractionAt) }

// Attempt returns the current attempt, if any.
func (g *Engagement) Attempt() *EngagementAttempt { return g.attempt }

// NoteUserInput resets the timer and re-arms idle chatter.
func (g *Engagement) NoteUserInput(now time.Time) {
	g.lastInteractionAt = now
	g.idleChatter = 0
	g.attempt = nil
}

// NoteBusy keeps the timer fresh while something is being said.
func (g *Engagement) NoteBusy(now time.Time) { g.lastInteractionAt = now }

// BoredomDue reports whether the silence has lasted past the threshold and
// idle chatter has not been used up since the last user input.
func (g *Engagement) BoredomDue(now time.Time) bool {
	return g.Idle(now) > g.cfg.BoredomThreshold && g.idleChatter < g.cfg.MaxIdleChatter
}

// Begin records a new attempt for reason.
func (g *Engagement) Begin(reason EngagementReason, now time.Time) *EngagementAttempt {
	if g.attempt == nil || g.attempt.Reason != reason {
		g.attempt = &EngagementAttempt{Reason: reason}
	}
	g.attempt.TurnsAttempted++
	g.attempt.LastAttemptAt = now
	return g.attempt
}

// Succeeded restarts the timer after a delivered utterance.
func (g *Engagement) Succeeded(reason EngagementReason, now time.Time) {
	g.lastInteractionAt = now
	if reason == ReasonBoredom {
		g.idleChatter++
	}
	g.attempt = nil
}

// Rejected rewinds the timer so another attempt comes due after
// RewindMargin instead of a full threshold.
func (g *Engagement) Rejected(now time.Time) {
	g.lastInteractionAt = now.Add(-(g.cfg.BoredomThreshold - g.cfg.RewindMargin))
}

// Failed restarts the timer after an oracle failure.
func (g *Engagement) Failed(now time.Time) { g.lastInteractionAt = now }

// FocusAngle picks a random conversational angle.
func (g *Engagement) FocusAngle() string {
	if len(g.angles) == 0 {
		return ""
	}
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return g.angles[g.rng.Intn(len(g.angles))]
}
