package mind

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrEmptyTurn is returned for a turn without user or text.
var ErrEmptyTurn = errors.New("empty turn")

// Speaker delivers utterances one at a time. Speak preempts whatever is
// playing; Then waits for it to finish. Both return immediately.
type Speaker interface {
	Speak(ctx context.Context, text string) string
	Then(ctx context.Context, text string) string
	Interrupt() bool
	Busy() bool
}

// SceneObserver is told about scene switches the persona makes on her own.
type SceneObserver func(from, to LifeState)

// Options wires an Engine. Store, Oracle and Speaker are required.
type Options struct {
	Config     Config
	Store      Persistence
	Oracle     DialogueOracle
	Speaker    Speaker
	Classifier IntentClassifier
	Catalog    *Catalog
	Items      []ItemRule
	Rand       *rand.Rand
	Clock      func() time.Time
	Logger     zerolog.Logger
	OnScene    SceneObserver
}

// TurnResult is what a user turn produced.
type TurnResult struct {
	Reply             string   `json:"reply"`
	CommittedActivity string   `json:"committed_activity"`
	OldTier           Tier     `json:"old_tier"`
	NewTier           Tier     `json:"new_tier"`
	Interrupted       bool     `json:"interrupted"`
	Fallback          bool     `json:"fallback"`
	Intents           []Intent `json:"intents,omitempty"`
}

// TierChanged reports whether the turn moved the user on the ladder.
func (r TurnResult) TierChanged() bool { return r.OldTier.Rank != r.NewTier.Rank }

// TickResult is what one engagement tick did.
type TickResult struct {
	State     EngagementState
	Reason    EngagementReason
	Switched  bool
	Scene     Scene
	Spoke     bool
	Utterance string
	Rejected  bool
}

type userState struct {
	rel     Relationship
	history *History
}

// Engine is the living persona: one life state, one relationship per user,
// and a single speaking voice. User turns and engagement ticks may run
// concurrently; commits are serialised on one lock and no lock is held
// while the oracle runs.
type Engine struct {
	cfg        Config
	log        zerolog.Logger
	store      Persistence
	oracle     DialogueOracle
	speech     Speaker
	clock      func() time.Time
	onScene    SceneObserver
	life       *LifeStore
	activities *ActivityScheduler
	relations  *RelationshipMachine
	applier    *DecisionApplier
	limiter    *ProactiveLimiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.Mutex
	users           map[string]*userState
	activeUser      string
	inTurn          int
	proactive       bool
	proactiveCancel context.CancelFunc
	announceCancel  context.CancelFunc
	engagement      *Engagement
}

// NewEngine loads persisted state and returns a ready engine.
func NewEngine(opts Options) (*Engine, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Store == nil || opts.Oracle == nil || opts.Speaker == nil {
		return nil, fmt.Errorf("mind: store, oracle and speaker are required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	catalog := DefaultCatalog()
	if opts.Catalog != nil {
		catalog = *opts.Catalog
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	log := opts.Logger.With().Str("component", "engine").Logger()
	now := clock()

	acts := NewActivityScheduler(cfg, catalog, rng, opts.Logger)
	life := NewLifeStore(cfg, opts.Store, acts.Pick, now, opts.Logger)
	acts.Bind(life)
	relations := NewRelationshipMachine(cfg, opts.Classifier)

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:        cfg,
		log:        log,
		store:      opts.Store,
		oracle:     opts.Oracle,
		speech:     opts.Speaker,
		clock:      clock,
		onScene:    opts.OnScene,
		life:       life,
		activities: acts,
		relations:  relations,
		applier:    NewDecisionApplier(cfg, life, relations, opts.Items, opts.Logger),
		limiter:    NewProactiveLimiter(cfg.ProactivePerMinute),
		ctx:        ctx,
		cancel:     cancel,
		users:      make(map[string]*userState),
		engagement: NewEngagement(cfg, now, rng),
	}
	s := life.Snapshot()
	log.Info().Str("activity", s.Activity).Str("location", s.Location).
		Float64("mood", s.Mood).Float64("energy", s.Energy).Msg("persona awake")
	return e, nil
}

// Life returns the life state advanced to now.
func (e *Engine) Life() LifeState { return e.life.Tick(e.clock()) }

// Activities exposes the activity scheduler.
func (e *Engine) Activities() *ActivityScheduler { return e.activities }

// Relationship returns the stored relationship with userID.
func (e *Engine) Relationship(userID string) Relationship {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userLocked(userID).rel
}

// History returns the conversation log with userID.
func (e *Engine) History(userID string) []Utterance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userLocked(userID).history.Items()
}

// TierScore ranks userID for message arbitration.
func (e *Engine) TierScore(userID string) float64 {
	return e.Relationship(userID).Tier().Score()
}

// SetActiveUser chooses whom proactive speech is addressed to.
func (e *Engine) SetActiveUser(userID string) {
	e.mu.Lock()
	e.activeUser = userID
	e.mu.Unlock()
}

// Forgetter is implemented by stores that can delete a user's records.
type Forgetter interface {
	Forget(userID string) error
}

// Forget resets everything the persona knows about userID: the cached
// relationship and history, and the stored records when the store supports
// deletion.
func (e *Engine) Forget(userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.users, userID)
	f, ok := e.store.(Forgetter)
	if !ok {
		return nil
	}
	if err := f.Forget(userID); err != nil {
		return fmt.Errorf("forget %s: %w", userID, err)
	}
	e.log.Info().Str("user", userID).Msg("user forgotten")
	return nil
}

func (e *Engine) userLocked(id string) *userState {
	if u, ok := e.users[id]; ok {
		return u
	}
	rel, err := e.store.LoadRelationship(id)
	if err != nil {
		if !errors.Is(err, ErrNoRecord) {
			e.log.Warn().Err(err).Str("user", id).Msg("relationship unreadable, starting fresh")
		}
		rel = Relationship{UserID: id}
	}
	rel.UserID = id
	items, err := e.store.LoadHistory(id)
	if err != nil && !errors.Is(err, ErrNoRecord) {
		e.log.Warn().Err(err).Str("user", id).Msg("history unreadable, starting fresh")
	}
	u := &userState{rel: rel, history: NewHistory(e.cfg.HistoryLimit, items)}
	e.users[id] = u
	return u
}

func (e *Engine) saveUserLocked(u *userState) {
	if err := e.store.SaveRelationship(u.rel); err != nil {
		e.log.Error().Err(err).Str("user", u.rel.UserID).Msg("save relationship")
	}
	if err := e.store.SaveHistory(u.rel.UserID, u.history.Items()); err != nil {
		e.log.Error().Err(err).Str("user", u.rel.UserID).Msg("save history")
	}
}

// cancelPendingLocked drops proactive work that a new user turn makes stale.
func (e *Engine) cancelPendingLocked() {
	if e.proactiveCancel != nil {
		e.proactiveCancel()
		e.proactiveCancel = nil
	}
	if e.announceCancel != nil {
		e.announceCancel()
		e.announceCancel = nil
	}
}

// consult calls the oracle with the configured timeout. A slow oracle that
// ignores ctx is abandoned, not waited for.
func (e *Engine) consult(ctx context.Context, req OracleRequest) (Proposal, error) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.OracleTimeout)
	defer cancel()

	type result struct {
		p   Proposal
		err error
	}
	ch := make(chan result, 1)
	start := time.Now()
	go func() {
		p, err := e.oracle.Decide(cctx, req)
		ch <- result{p, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-cctx.Done():
		r.err = cctx.Err()
	}
	if r.err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		r.err = fmt.Errorf("%w: %w", ErrOracleTimeout, r.err)
	}
	r.p.Reply = strings.TrimSpace(r.p.Reply)
	logOracleCall(e.log, req, r.p, time.Since(start), r.err)
	return r.p, r.err
}

// OnUserTurn handles one user message end to end: interruption, oracle,
// commit, speech and the follow-up remark on a tier change.
func (e *Engine) OnUserTurn(ctx context.Context, userID, text string) (TurnResult, error) {
	text = strings.TrimSpace(text)
	if userID == "" || text == "" {
		return TurnResult{}, ErrEmptyTurn
	}
	now := e.clock()

	e.mu.Lock()
	e.inTurn++
	e.cancelPendingLocked()
	e.engagement.NoteUserInput(now)
	e.activeUser = userID
	u := e.userLocked(userID)
	rel := u.rel
	hist := u.history.Items()
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.inTurn--
		e.engagement.NoteUserInput(e.clock())
		e.mu.Unlock()
	}()

	res := TurnResult{OldTier: rel.Tier()}
	log := e.log.With().Str("user", userID).Logger()

	if e.speech.Interrupt() {
		res.Interrupted = true
		e.life.Mutate(now, -e.cfg.InterruptMoodPenalty, 0, "")
		e.speech.Speak(e.ctx, e.cfg.InterruptedReply)
		log.Info().Msg("interrupted while speaking")
	}

	life := e.life.Tick(now)
	var prop Proposal
	if res.OldTier.Rank <= BlacklistedRank {
		prop = Proposal{Reply: e.cfg.BlacklistReply}
		log.Info().Float64("affection", rel.Affection).Msg("blacklisted user, ignoring")
	} else {
		_, preview, _ := e.relations.Apply(rel, text, now)
		p, err := e.consult(ctx, OracleRequest{
			Kind:      KindReply,
			UserID:    userID,
			UserText:  text,
			Life:      life,
			Tier:      res.OldTier,
			Affection: rel.Affection,
			Reaction:  preview.Reaction,
			History:   hist,
		})
		if err != nil || p.Reply == "" {
			log.Warn().Err(err).Msg("oracle unavailable, falling back")
			p = Proposal{Reply: e.cfg.FallbackReply}
			res.Fallback = true
		}
		prop = p
	}

	e.mu.Lock()
	out := e.applier.Apply(now, TurnInput{UserID: userID, Text: text}, u.rel, prop)
	u.rel = out.Relationship
	u.history.Push(Utterance{Role: RoleUser, Text: text, At: now})
	if res.Interrupted {
		u.history.Push(Utterance{Role: RolePersona, Text: e.cfg.InterruptedReply, At: now})
	}
	u.history.Push(Utterance{Role: RolePersona, Text: prop.Reply, At: now})
	e.saveUserLocked(u)
	e.mu.Unlock()

	if res.Interrupted {
		e.speech.Then(e.ctx, prop.Reply)
	} else {
		e.speech.Speak(e.ctx, prop.Reply)
	}

	res.Reply = prop.Reply
	res.CommittedActivity = out.Activity
	res.NewTier = out.Relationship.Tier()
	res.Intents = out.Intents.Sorted()
	log.Info().Str("reaction", string(out.Impact.Reaction)).
		Float64("affection", out.Relationship.Affection).
		Float64("delta", out.Impact.Affection).
		Int("streak", out.Relationship.ProvocationStreak).
		Str("activity", out.Activity).
		Msg("turn committed")

	if res.TierChanged() {
		log.Info().Str("from", res.OldTier.Name).Str("to", res.NewTier.Name).Msg("tier changed")
		e.announceTierChange(userID, res.OldTier, res.NewTier)
	}
	return res, nil
}

// announceTierChange queues a remark about a tier change after the reply.
// It is dropped when the user speaks again first.
func (e *Engine) announceTierChange(userID string, from, to Tier) {
	e.mu.Lock()
	actx, cancel := context.WithCancel(e.ctx)
	e.announceCancel = cancel
	u := e.userLocked(userID)
	req := OracleRequest{
		Kind:      KindTierChange,
		UserID:    userID,
		Life:      e.life.Snapshot(),
		Tier:      to,
		Affection: u.rel.Affection,
		History:   u.history.Items(),
		Directive: tierDirective(from, to),
	}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		p, err := e.consult(actx, req)
		if err != nil || p.Reply == "" || actx.Err() != nil {
			return
		}
		e.mu.Lock()
		if actx.Err() != nil {
			e.mu.Unlock()
			return
		}
		u.history.Push(Utterance{Role: RolePersona, Text: p.Reply, At: e.clock()})
		e.saveUserLocked(u)
		e.mu.Unlock()
		e.speech.Then(actx, p.Reply)
	}()
}

// Welcome greets userID without touching the relationship.
func (e *Engine) Welcome(ctx context.Context, userID string) string {
	now := e.clock()
	e.mu.Lock()
	e.activeUser = userID
	u := e.userLocked(userID)
	rel := u.rel
	known := rel.LastActiveDate != ""
	req := OracleRequest{
		Kind:      KindWelcome,
		UserID:    userID,
		Life:      e.life.Tick(now),
		Tier:      rel.Tier(),
		Affection: rel.Affection,
		History:   u.history.Items(),
		Directive: welcomeDirective(known),
	}
	e.mu.Unlock()

	var line string
	switch {
	case rel.Tier().Rank <= BlacklistedRank:
		line = e.cfg.BlacklistReply
	default:
		p, err := e.consult(ctx, req)
		if err != nil || p.Reply == "" {
			line = "Ah, an audience! Welcome to my little stage."
		} else {
			line = p.Reply
		}
	}

	e.mu.Lock()
	u.history.Push(Utterance{Role: RolePersona, Text: line, At: now})
	e.saveUserLocked(u)
	e.engagement.NoteUserInput(now)
	e.mu.Unlock()
	e.speech.Speak(e.ctx, line)
	return line
}

// Tick runs one engagement step at now: skip while anything is in flight,
// let the scene drift, and maybe speak unprompted.
func (e *Engine) Tick(ctx context.Context, now time.Time) TickResult {
	res := TickResult{State: StateQuiescent}
	before := e.life.Tick(now)

	e.mu.Lock()
	if e.inTurn > 0 || e.proactive || e.speech.Busy() {
		e.engagement.NoteBusy(now)
		e.mu.Unlock()
		return res
	}

	switched, scene := e.activities.AutoSwitch(e.engagement.LastInteraction(), now)
	state := e.life.Snapshot()
	if switched {
		res.Switched, res.Scene = true, scene
		res.State = StateScenePending
	}
	// The scene observer runs once the lock is released, before any oracle call.
	unlock := func() {
		e.mu.Unlock()
		if switched && e.onScene != nil {
			e.onScene(before, state)
		}
	}

	userID := e.activeUser
	if userID == "" {
		unlock()
		return res
	}
	u := e.userLocked(userID)
	tier := u.rel.Tier()
	if tier.Rank <= TierOf(e.cfg.IgnoreAffection).Rank || state.Energy < e.cfg.MinProactiveEnergy {
		unlock()
		res.State = StateQuiescent
		return res
	}

	var reason EngagementReason
	var directive, focus string
	switch {
	case switched:
		reason = ReasonSceneChange
		directive = sceneDirective(state)
	case e.engagement.BoredomDue(now):
		reason = ReasonBoredom
		res.State = StateBoredomPending
		focus = e.engagement.FocusAngle()
		directive = boredomDirective(focus)
	default:
		unlock()
		return res
	}
	res.Reason = reason
	if !e.limiter.Allow(now) {
		e.log.Debug().Str("reason", string(reason)).Msg("proactive speech rate limited")
		unlock()
		return res
	}

	attempt := e.engagement.Begin(reason, now)
	pctx, cancel := context.WithCancel(ctx)
	e.proactive = true
	e.proactiveCancel = cancel
	kind := KindBoredom
	if reason == ReasonSceneChange {
		kind = KindSceneChange
	}
	req := OracleRequest{
		Kind:      kind,
		UserID:    userID,
		Life:      state,
		Tier:      tier,
		Affection: u.rel.Affection,
		History:   u.history.Items(),
		Directive: directive,
		Focus:     focus,
	}
	unlock()

	p, err := e.consult(pctx, req)

	e.mu.Lock()
	superseded := pctx.Err() != nil || e.inTurn > 0
	e.proactive = false
	e.proactiveCancel = nil
	cancel()
	log := e.log.With().Str("reason", string(reason)).Int("attempt", attempt.TurnsAttempted).Logger()

	switch {
	case superseded:
		// A user turn took over; it already reset the engagement state.
		e.mu.Unlock()
		log.Debug().Msg("proactive speech cancelled")
		return res
	case err != nil:
		e.engagement.Failed(now)
		e.mu.Unlock()
		return res
	case p.Reply == "" || IsRepeat(p.Reply, u.history.RecentPersona(e.cfg.RepetitionWindow)):
		e.engagement.Rejected(now)
		e.mu.Unlock()
		res.Rejected = true
		log.Info().Str("reply", truncateForLog(p.Reply, 80)).Msg("repetitive proactive line rejected")
		return res
	}

	e.applier.Apply(now, TurnInput{UserID: userID, Synthetic: true}, u.rel, p)
	u.history.Push(Utterance{Role: RolePersona, Text: p.Reply, At: now})
	e.saveUserLocked(u)
	e.engagement.Succeeded(reason, now)
	e.mu.Unlock()

	e.speech.Speak(e.ctx, p.Reply)
	res.Spoke, res.Utterance = true, p.Reply
	log.Info().Str("reply", truncateForLog(p.Reply, 80)).Msg("spoke unprompted")
	return res
}

// Run ticks the engine every interval until ctx is done.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			e.Tick(ctx, e.clock())
		}
	}
}

// Close stops background remarks and silences the voice.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
	e.speech.Interrupt()
}
