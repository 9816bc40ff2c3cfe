package mind

import (
	"errors"
	"math"
	"time"
)

// NoItem marks an empty hand.
const NoItem = ""

// ErrNoRecord is returned by a Persistence when nothing was saved yet.
var ErrNoRecord = errors.New("no record")

// Travel is the in-transit sub-state. While set, the visible activity is a
// placeholder and the destination scene is committed on arrival.
type Travel struct {
	Destination     string    `json:"destination"`
	PendingActivity string    `json:"pending_activity"`
	StartedAt       time.Time `json:"started_at"`
}

// LifeState is the persona's body and scene.
type LifeState struct {
	Mood             float64   `json:"mood"`
	Energy           float64   `json:"energy"`
	Activity         string    `json:"activity"`
	Location         string    `json:"location"`
	HeldItem         string    `json:"held_item,omitempty"`
	Travel           *Travel   `json:"travel,omitempty"`
	LastUpdateAt     time.Time `json:"last_update_at"`
	LastSwitchAt     time.Time `json:"last_switch_at"`
	LastActiveAt     time.Time `json:"last_active_at"`
	TurnsSinceSwitch int       `json:"turns_since_switch"`
}

// Traveling reports whether the persona is between two scenes.
func (s LifeState) Traveling() bool { return s.Travel != nil }

// Clone returns a copy that shares no pointers with s.
func (s LifeState) Clone() LifeState {
	out := s
	if s.Travel != nil {
		t := *s.Travel
		out.Travel = &t
	}
	return out
}

// Valid reports whether a loaded record is usable.
func (s LifeState) Valid() bool {
	if math.IsNaN(s.Mood) || math.IsNaN(s.Energy) || math.IsInf(s.Mood, 0) || math.IsInf(s.Energy, 0) {
		return false
	}
	return s.Activity != "" && !s.LastUpdateAt.IsZero()
}

// Relationship is the per-user affection record. The tier is always derived
// from Affection and never stored.
type Relationship struct {
	UserID            string  `json:"user_id"`
	Affection         float64 `json:"affection"`
	ProvocationStreak int     `json:"provocation_streak"`
	GiftStreak        int     `json:"gift_streak"`
	LastActiveDate    string  `json:"last_active_date,omitempty"`
}

// Tier returns the ladder rung for the current affection.
func (r Relationship) Tier() Tier { return TierOf(r.Affection) }

// Proposal is the next-state suggestion returned by the dialogue oracle.
// Empty Activity or Location keep the current value; an empty HeldItem
// means empty hands. TravelTo, when set, sends the persona on the way there
// before Activity begins.
type Proposal struct {
	Reply    string `json:"reply_text"`
	Activity string `json:"activity,omitempty"`
	Location string `json:"location,omitempty"`
	HeldItem string `json:"item,omitempty"`
	TravelTo string `json:"travel_to,omitempty"`
}

// Role of a history entry.
type Role string

const (
	RoleUser    Role = "user"
	RolePersona Role = "persona"
)

// Utterance is one line of conversation history.
type Utterance struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Persistence stores the durable parts of the engine. Implementations return
// an error wrapping ErrNoRecord when nothing was saved yet; any other load
// error is treated as corruption.
type Persistence interface {
	LoadLife() (LifeState, error)
	SaveLife(LifeState) error
	LoadRelationship(userID string) (Relationship, error)
	SaveRelationship(Relationship) error
	LoadHistory(userID string) ([]Utterance, error)
	SaveHistory(userID string, h []Utterance) error
}

func clamp100(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 100 {
		return 100
	}
	return x
}
