package mind

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ItemRule lists the props that make sense for scenes whose activity or
// location mentions Key.
type ItemRule struct {
	Key   string
	Items []string
}

// DefaultItemRules is the stock prop whitelist. Scenes matching no rule
// accept any prop.
func DefaultItemRules() []ItemRule {
	return []ItemRule{
		{Key: "sleep", Items: []string{"pillow", "blanket", "seal plushie"}},
		{Key: "bed", Items: []string{"pillow", "blanket", "seal plushie"}},
		{Key: "bath", Items: []string{"rubber duck", "towel", "bubble wand"}},
		{Key: "kitchen", Items: []string{"ladle", "apron", "macaron", "teacup"}},
		{Key: "cook", Items: []string{"ladle", "apron", "macaron"}},
		{Key: "opera", Items: []string{"script", "fan", "opera glasses", "microphone"}},
		{Key: "tea", Items: []string{"teacup", "macaron", "cake", "fan"}},
		{Key: "stream", Items: []string{"microphone", "phone"}},
	}
}

// giftCues signal that the user is handing something over.
var giftCues = []string{"give", "gift", "for you", "here you go", "take this", "送", "给"}

func hasGiftCue(text string) bool {
	text = strings.ToLower(text)
	for _, cue := range giftCues {
		if containsKeyword(text, cue) {
			return true
		}
	}
	return false
}

// TurnInput is one message entering the applier. Synthetic turns are the
// persona's own proactive utterances and leave relationships untouched.
type TurnInput struct {
	UserID    string
	Text      string
	Synthetic bool
}

// Outcome is everything a committed turn changed.
type Outcome struct {
	Relationship   Relationship
	Impact         Impact
	Intents        IntentSet
	Life           LifeState
	Activity       string
	ItemDowngraded bool
}

// DecisionApplier validates an oracle proposal and commits it together with
// the relationship impact and energy cost of the turn.
type DecisionApplier struct {
	cfg       Config
	life      *LifeStore
	relations *RelationshipMachine
	items     []ItemRule
	log       zerolog.Logger
}

func NewDecisionApplier(cfg Config, life *LifeStore, relations *RelationshipMachine, items []ItemRule, log zerolog.Logger) *DecisionApplier {
	if items == nil {
		items = DefaultItemRules()
	}
	return &DecisionApplier{cfg: cfg, life: life, relations: relations, items: items, log: log.With().Str("component", "decision").Logger()}
}

// AllowedItems returns the whitelist for a scene, or nil when any prop fits.
func (d *DecisionApplier) AllowedItems(activity, location string) []string {
	text := strings.ToLower(activity + " " + location)
	for _, r := range d.items {
		if strings.Contains(text, r.Key) {
			return r.Items
		}
	}
	return nil
}

// ValidateItem returns item when it fits the scene or the user is gifting
// it, and NoItem otherwise.
func (d *DecisionApplier) ValidateItem(item, activity, location, userText string) (string, bool) {
	if item == NoItem || strings.EqualFold(item, "none") {
		return NoItem, false
	}
	allowed := d.AllowedItems(activity, location)
	if allowed == nil {
		return item, false
	}
	for _, a := range allowed {
		if strings.Contains(strings.ToLower(item), a) {
			return item, false
		}
	}
	if hasGiftCue(userText) {
		return item, false
	}
	return NoItem, true
}

// Apply commits one turn. The relationship result is computed first and the
// life state is updated in a single locked step, so callers never observe a
// half-applied turn. rel is returned updated in the outcome and must be
// stored by the caller.
func (d *DecisionApplier) Apply(now time.Time, in TurnInput, rel Relationship, p Proposal) Outcome {
	out := Outcome{Relationship: rel, Intents: IntentSet{}, Impact: Impact{Reaction: ReactionNormal}}
	if !in.Synthetic {
		out.Relationship, out.Impact, out.Intents = d.relations.Apply(rel, in.Text, now)
	}

	out.Life, _ = d.life.Update(now, func(s *LifeState) bool {
		if s.Traveling() {
			// A traveller keeps walking; only the body reacts.
			s.Mood += out.Impact.Mood
			s.Energy -= d.cfg.EnergyCostPerTurn
			if !in.Synthetic {
				s.LastActiveAt = now
			}
			return true
		}

		activity := strings.TrimSpace(p.Activity)
		if activity == "" {
			activity = s.Activity
		}
		location := strings.TrimSpace(p.Location)
		if location == "" {
			location = s.Location
		}
		item, downgraded := strings.TrimSpace(p.HeldItem), false
		if item != s.HeldItem || activity != s.Activity {
			item, downgraded = d.ValidateItem(item, activity, location, in.Text)
		}
		out.ItemDowngraded = downgraded
		if downgraded {
			d.log.Debug().Str("item", p.HeldItem).Str("activity", activity).Msg("item does not fit scene, dropped")
		}

		if dest := strings.TrimSpace(p.TravelTo); dest != "" && dest != s.Location {
			beginTravel(s, now, dest, activity)
			s.TurnsSinceSwitch = 0
		} else {
			if activity == s.Activity {
				s.TurnsSinceSwitch++
			} else {
				s.TurnsSinceSwitch = 0
				s.LastSwitchAt = now
			}
			s.Activity, s.Location, s.HeldItem = activity, location, item
		}

		s.Mood += out.Impact.Mood
		s.Energy -= d.cfg.EnergyCostPerTurn
		if !in.Synthetic {
			s.LastActiveAt = now
		}
		return true
	})
	out.Activity = out.Life.Activity
	return out
}
