package mind

import (
	"context"
	"errors"
	"fmt"
)

// ErrOracleTimeout is returned when the oracle does not answer in time.
var ErrOracleTimeout = errors.New("oracle timed out")

// RequestKind says what the oracle is asked to produce.
type RequestKind string

const (
	KindReply       RequestKind = "reply"
	KindSceneChange RequestKind = "scene-change"
	KindBoredom     RequestKind = "boredom"
	KindTierChange  RequestKind = "tier-change"
	KindWelcome     RequestKind = "welcome"
)

// OracleRequest is the context handed to the dialogue oracle.
type OracleRequest struct {
	Kind      RequestKind
	UserID    string
	UserText  string
	Life      LifeState
	Tier      Tier
	Affection float64
	Reaction  Reaction
	History   []Utterance
	Directive string
	Focus     string
}

// Synthetic reports whether there is no user message behind the request.
func (r OracleRequest) Synthetic() bool { return r.Kind != KindReply }

// DialogueOracle produces the persona's next line and proposed next scene.
// Implementations should honour ctx; the engine enforces its own timeout
// regardless.
type DialogueOracle interface {
	Decide(ctx context.Context, req OracleRequest) (Proposal, error)
}

// OracleFunc adapts a function to DialogueOracle.
type OracleFunc func(ctx context.Context, req OracleRequest) (Proposal, error)

func (f OracleFunc) Decide(ctx context.Context, req OracleRequest) (Proposal, error) {
	return f(ctx, req)
}

func sceneDirective(s LifeState) string {
	return fmt.Sprintf("You just started %s at the %s. Say one short line about it, as if thinking out loud to the person you talk with. Keep the new activity.", s.Activity, s.Location)
}

func boredomDirective(focus string) string {
	return fmt.Sprintf("The conversation has gone quiet for a while. Break the silence with one short line. Focus: %s. Do not repeat anything you said recently.", focus)
}

func tierDirective(from, to Tier) string {
	if to.Rank > from.Rank {
		return fmt.Sprintf("Your feelings toward this person just grew: they went from %q to %q in your eyes. React to it briefly and naturally, without naming the titles.", from.Name, to.Name)
	}
	return fmt.Sprintf("Your opinion of this person just dropped: they went from %q to %q in your eyes. React to it briefly, without naming the titles.", from.Name, to.Name)
}

func welcomeDirective(known bool) string {
	if known {
		return "This person just came back to talk to you. Greet them in one short line that fits your relationship."
	}
	return "Someone you have never met just started talking to you. Greet them in one short, theatrical line."
}
