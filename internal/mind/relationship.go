package mind

import (
	"time"
	"unicode/utf8"
)

// Reaction is the emotional colour of an impact, handed to the oracle.
type Reaction string

const (
	ReactionNormal   Reaction = "normal"
	ReactionHurt     Reaction = "hurt"
	ReactionOffended Reaction = "offended"
	ReactionExcited  Reaction = "excited"
	ReactionHappy    Reaction = "happy"
	ReactionShy      Reaction = "shy"
	ReactionTouched  Reaction = "touched"
)

// Impact is what one message does to affection and mood.
type Impact struct {
	Affection float64  `json:"affection"`
	Mood      float64  `json:"mood"`
	Reaction  Reaction `json:"reaction"`
}

// ImpactRule is the delta for one intent. Beloved and Hated override the
// affection delta at the extremes of the ladder.
type ImpactRule struct {
	Intent    Intent
	Affection float64
	Beloved   float64
	Hated     float64
	Mood      float64
	Reaction  Reaction
}

// DefaultImpactRules lists the rules in priority order; the first intent
// present in a message decides its impact.
func DefaultImpactRules() []ImpactRule {
	return []ImpactRule{
		{Intent: IntentHostile, Affection: -10, Beloved: -5, Hated: -15, Mood: -15, Reaction: ReactionHurt},
		{Intent: IntentProvoke, Affection: -5, Beloved: -2, Hated: -7.5, Mood: -10, Reaction: ReactionOffended},
		{Intent: IntentGiftHigh, Affection: 15, Mood: 15, Reaction: ReactionExcited},
		{Intent: IntentGiftFood, Affection: 5, Mood: 10, Reaction: ReactionHappy},
		{Intent: IntentAffectionate, Affection: 3, Mood: 5, Reaction: ReactionShy},
		{Intent: IntentComforting, Affection: 8, Mood: 10, Reaction: ReactionTouched},
	}
}

// neutralDrift is the small warmth of ordinary small talk.
var neutralDrift = Impact{Affection: 0.5, Mood: 0.5, Reaction: ReactionNormal}

// RelationshipMachine classifies messages and moves users along the ladder.
type RelationshipMachine struct {
	cfg        Config
	classifier IntentClassifier
	rules      []ImpactRule
}

// NewRelationshipMachine uses a KeywordClassifier when classifier is nil.
func NewRelationshipMachine(cfg Config, classifier IntentClassifier) *RelationshipMachine {
	if classifier == nil {
		classifier = NewKeywordClassifier(nil)
	}
	return &RelationshipMachine{cfg: cfg, classifier: classifier, rules: DefaultImpactRules()}
}

// Classify tags text with intents.
func (m *RelationshipMachine) Classify(text string) IntentSet {
	return m.classifier.Classify(text)
}

// ComputeImpact returns the raw impact of one message, before streaks.
// Hostile messages weigh less on a beloved user and more on a hated one.
func (m *RelationshipMachine) ComputeImpact(text string, intents IntentSet, affection float64) Impact {
	for _, r := range m.rules {
		if !intents.Has(r.Intent) {
			continue
		}
		aff := r.Affection
		switch {
		case affection >= BelovedAffection && r.Beloved != 0:
			aff = r.Beloved
		case affection <= HatedAffection && r.Hated != 0:
			aff = r.Hated
		}
		return Impact{Affection: aff, Mood: r.Mood, Reaction: r.Reaction}
	}
	if len(intents) == 0 && utf8.RuneCountInString(text) > 2 {
		return neutralDrift
	}
	return Impact{Reaction: ReactionNormal}
}

// streakMultiplier grows linearly with consecutive provocations.
func streakMultiplier(streak int) float64 {
	if streak < 1 {
		return 1
	}
	return 1 + 0.5*float64(streak-1)
}

// Apply runs one user message through classification, impact, streak
// bookkeeping and the daily welcome-back bonus. rel is not modified.
func (m *RelationshipMachine) Apply(rel Relationship, text string, now time.Time) (Relationship, Impact, IntentSet) {
	intents := m.Classify(text)
	impact := m.ComputeImpact(text, intents, rel.Affection)
	out := rel

	if intents.Provoking() {
		out.ProvocationStreak++
		if impact.Affection < 0 {
			impact.Affection *= streakMultiplier(out.ProvocationStreak)
		}
	} else {
		if out.ProvocationStreak > 0 && (intents.Has(IntentComforting) || intents.Has(IntentAffectionate) || intents.Has(IntentGiftFood)) {
			impact.Affection += m.cfg.ComfortBonus
			impact.Reaction = ReactionTouched
		}
		out.ProvocationStreak = 0
	}

	if intents.Gift() {
		out.GiftStreak++
		if m.cfg.GiftSpamLimit > 0 && out.GiftStreak > m.cfg.GiftSpamLimit {
			impact.Mood = -5
			if impact.Affection > 0 {
				impact.Affection = 0
			}
			impact.Reaction = ReactionNormal
		}
	} else {
		out.GiftStreak = 0
	}

	today := now.Format(time.DateOnly)
	if out.LastActiveDate != "" && out.LastActiveDate != today && !intents.Provoking() {
		impact.Affection += m.cfg.DailyBonus
		impact.Mood += m.cfg.DailyBonus
	}
	out.LastActiveDate = today

	out.Affection += impact.Affection
	return out, impact, intents
}
