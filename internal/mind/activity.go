package mind

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Bucket is a slice of the day. From and To are hours; To is exclusive and
// a bucket with From > To wraps past midnight.
type Bucket struct {
	Name     string
	From, To int
	Keywords []string
}

func (b Bucket) contains(hour int) bool {
	if b.From <= b.To {
		return hour >= b.From && hour < b.To
	}
	return hour >= b.From || hour < b.To
}

// LocationRule maps activity keywords to a place.
type LocationRule struct {
	Keywords []string
	Location string
}

// Catalog is the persona's repertoire of activities and places.
type Catalog struct {
	Activities      []string
	Buckets         []Bucket
	Locations       []LocationRule
	DefaultLocation string
}

// DefaultCatalog is the stock repertoire.
func DefaultCatalog() Catalog {
	return Catalog{
		Activities: []string{
			"sleeping under a pile of blankets",
			"dreaming of a standing ovation",
			"stargazing from the balcony",
			"sneaking a midnight snack",
			"soaking in the bathtub",
			"hugging a seal plushie in bed",
			"waking up and stretching",
			"tidying up the dressing table",
			"practicing expressions in the mirror",
			"recording a morning video",
			"cooking macaroni in the kitchen",
			"reading a new opera script",
			"giving a press interview",
			"rehearsing lines for tonight",
			"having afternoon tea",
			"baking a strawberry cake",
			"window shopping on the boulevard",
			"feeding pigeons at the seaside",
			"sketching at an open-air cafe",
			"napping on the sofa",
			"watching an opera from the royal box",
			"presiding over a mock trial",
			"hosting a live stream",
			"practicing magic tricks",
			"listening to the rain",
			"feeding a stray cat",
		},
		Buckets: []Bucket{
			{Name: "late-night", From: 23, To: 5, Keywords: []string{"sleep", "dream", "star", "midnight", "bath", "plushie"}},
			{Name: "early-morning", From: 5, To: 7, Keywords: []string{"waking", "sleep", "dream"}},
			{Name: "morning", From: 7, To: 10, Keywords: []string{"waking", "tidying", "mirror", "video"}},
			{Name: "noon", From: 10, To: 14, Keywords: []string{"cook", "kitchen", "script", "interview", "rehears"}},
			{Name: "afternoon", From: 14, To: 18, Keywords: []string{"tea", "cake", "shopping", "pigeon", "seaside", "open-air", "nap"}},
			{Name: "evening", From: 18, To: 23, Keywords: []string{"opera", "trial", "stream", "magic", "rain", "stray cat"}},
		},
		Locations: []LocationRule{
			{Keywords: []string{"opera", "rehears", "trial", "perform"}, Location: "opera house"},
			{Keywords: []string{"boulevard", "shop", "street", "outside", "buy"}, Location: "boulevard"},
			{Keywords: []string{"seaside", "pigeon", "beach"}, Location: "seaside"},
			{Keywords: []string{"kitchen", "cook", "bak"}, Location: "kitchen"},
			{Keywords: []string{"sleep", "bed", "blanket", "plushie", "dream"}, Location: "bedroom"},
			{Keywords: []string{"bath", "wash"}, Location: "bathroom"},
			{Keywords: []string{"eat", "tea", "coffee", "cafe", "snack"}, Location: "cafe"},
			{Keywords: []string{"stream", "video", "book", "read", "script"}, Location: "study"},
		},
		DefaultLocation: "home",
	}
}

// SituationFilter returns extra keywords that the current state makes
// relevant. A nil or empty result applies no filter.
type SituationFilter func(s LifeState) []string

// ActivityScheduler picks plausible activities for the time of day and
// decides when the persona drifts to a new one on its own.
type ActivityScheduler struct {
	cfg       Config
	catalog   Catalog
	situation SituationFilter
	life      *LifeStore
	log       zerolog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewActivityScheduler builds a scheduler. Bind must be called before
// AutoSwitch is used.
func NewActivityScheduler(cfg Config, catalog Catalog, rng *rand.Rand, log zerolog.Logger) *ActivityScheduler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &ActivityScheduler{cfg: cfg, catalog: catalog, rng: rng, log: log.With().Str("component", "activity").Logger()}
	s.situation = s.lowEnergyFilter
	return s
}

// Bind attaches the life store whose scene this scheduler switches.
func (a *ActivityScheduler) Bind(life *LifeStore) { a.life = life }

// SetSituationFilter replaces the stock low-energy filter.
func (a *ActivityScheduler) SetSituationFilter(f SituationFilter) { a.situation = f }

func (a *ActivityScheduler) lowEnergyFilter(s LifeState) []string {
	if s.Energy > 0 && s.Energy < a.cfg.LowEnergy {
		return []string{"sleep", "nap", "bath", "tea", "rain"}
	}
	return nil
}

// BucketAt returns the bucket containing now's hour.
func (a *ActivityScheduler) BucketAt(now time.Time) Bucket {
	h := now.Hour()
	for _, b := range a.catalog.Buckets {
		if b.contains(h) {
			return b
		}
	}
	return Bucket{Name: "any"}
}

// Candidates returns the activities plausible at now for state s.
func (a *ActivityScheduler) Candidates(now time.Time, s LifeState) []string {
	bucket := filterByKeywords(a.catalog.Activities, a.BucketAt(now).Keywords)
	if len(bucket) == 0 {
		bucket = a.catalog.Activities
	}
	if a.situation != nil {
		if kws := a.situation(s); len(kws) > 0 {
			if narrowed := filterByKeywords(bucket, kws); len(narrowed) > 0 {
				return narrowed
			}
		}
	}
	return bucket
}

func filterByKeywords(activities, keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	var out []string
	for _, act := range activities {
		if containsAny(act, keywords) {
			out = append(out, act)
		}
	}
	return out
}

// InferLocation maps an activity to a place using the catalog rules.
func (a *ActivityScheduler) InferLocation(activity string) string {
	for _, r := range a.catalog.Locations {
		if containsAny(activity, r.Keywords) {
			return r.Location
		}
	}
	return a.catalog.DefaultLocation
}

// Pick is a ScenePicker drawing uniformly from the candidates.
func (a *ActivityScheduler) Pick(now time.Time, s LifeState) Scene {
	cands := a.Candidates(now, s)
	if len(cands) == 0 {
		return Scene{Activity: "resting", Location: a.catalog.DefaultLocation}
	}
	a.rngMu.Lock()
	act := cands[a.rng.Intn(len(cands))]
	a.rngMu.Unlock()
	return Scene{Activity: act, Location: a.InferLocation(act)}
}

// PredictActivity returns a plausible scene for now given the current state.
func (a *ActivityScheduler) PredictActivity(now time.Time) Scene {
	var s LifeState
	if a.life != nil {
		s = a.life.Snapshot()
	}
	return a.Pick(now, s)
}

// lockWindow is the quiet time required after the last interaction.
func (a *ActivityScheduler) lockWindow(turns int) (lock, cooldown time.Duration) {
	if turns >= a.cfg.WarmTurns {
		return a.cfg.WarmLockWindow, a.cfg.WarmSwitchCooldown
	}
	return a.cfg.ColdLockWindow, a.cfg.SwitchCooldown
}

// AutoSwitch moves the persona to a new scene when the conversation has been
// quiet long enough and the current scene has lasted its cooldown. It never
// switches mid-travel. The new scene differs from the current one unless
// every retry drew the same activity.
func (a *ActivityScheduler) AutoSwitch(lastInteractionAt, now time.Time) (bool, Scene) {
	if a.life == nil {
		return false, Scene{}
	}
	var picked Scene
	_, switched := a.life.Update(now, func(s *LifeState) bool {
		if s.Traveling() {
			return false
		}
		lock, cooldown := a.lockWindow(s.TurnsSinceSwitch)
		if now.Sub(lastInteractionAt) < lock {
			return false
		}
		if now.Sub(s.LastSwitchAt) < cooldown {
			return false
		}

		sc := a.Pick(now, *s)
		for i := 0; i < a.cfg.SwitchRetries && sc.Activity == s.Activity; i++ {
			sc = a.Pick(now, *s)
		}
		if sc.Activity == s.Activity {
			return false
		}

		a.log.Info().Str("from", s.Activity).Str("to", sc.Activity).Str("location", sc.Location).
			Int("turns", s.TurnsSinceSwitch).Msg("scene switch")
		s.Activity, s.Location = sc.Activity, sc.Location
		s.HeldItem = NoItem
		s.LastSwitchAt = now
		s.TurnsSinceSwitch = 0
		s.Mood += a.cfg.SwitchMoodBonus
		picked = sc
		return true
	})
	return switched, picked
}
