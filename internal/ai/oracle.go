package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"living-persona/internal/mind"
)

// Section limits in characters. The identity is never trimmed.
const (
	maxHistoryChars = 3200
	maxLineChars    = 600
)

const defaultIdentity = `You are %s, a theatrical, sharp-tongued woman with a life of her own.
You speak in short, vivid lines, one or two sentences at most. You never
mention being an AI, a model or a program. You stay in character.`

// Persona is the fixed part of the system prompt.
type Persona struct {
	Name     string
	Identity string
}

// LoadPersona reads the identity text from path. An empty path or a missing
// file yields the built-in identity.
func LoadPersona(name, path string) (Persona, error) {
	if name == "" {
		name = "Domme"
	}
	p := Persona{Name: name, Identity: fmt.Sprintf(defaultIdentity, name)}
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read identity: %w", err)
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		p.Identity = s
	}
	return p, nil
}

// Oracle asks a chat model for the next line and scene.
type Oracle struct {
	provider Provider
	persona  Persona
}

var _ mind.DialogueOracle = (*Oracle)(nil)

func NewOracle(provider Provider, persona Persona) *Oracle {
	return &Oracle{provider: provider, persona: persona}
}

// Decide implements mind.DialogueOracle.
func (o *Oracle) Decide(ctx context.Context, req mind.OracleRequest) (mind.Proposal, error) {
	raw, err := o.provider.Generate(ctx, o.Messages(req))
	if err != nil {
		return mind.Proposal{}, err
	}
	p := ParseProposal(raw)
	if strings.TrimSpace(p.Reply) == "" {
		return mind.Proposal{}, fmt.Errorf("empty reply from model")
	}
	return p, nil
}

// Messages renders req as a chat transcript.
func (o *Oracle) Messages(req mind.OracleRequest) []Message {
	msgs := []Message{{Role: "system", Content: o.systemPrompt(req)}}

	hist := req.History
	used := 0
	start := len(hist)
	for start > 0 {
		n := len(trimToChars(hist[start-1].Text, maxLineChars))
		if used+n > maxHistoryChars {
			break
		}
		used += n
		start--
	}
	for _, u := range hist[start:] {
		role := "user"
		if u.Role == mind.RolePersona {
			role = "assistant"
		}
		msgs = append(msgs, Message{Role: role, Content: trimToChars(u.Text, maxLineChars)})
	}

	if req.Kind == mind.KindReply {
		msgs = append(msgs, Message{Role: "user", Content: trimToChars(req.UserText, maxLineChars)})
	} else {
		msgs = append(msgs, Message{Role: "system", Content: req.Directive})
	}
	return msgs
}

func (o *Oracle) systemPrompt(req mind.OracleRequest) string {
	var b strings.Builder
	b.WriteString(o.persona.Identity)
	b.WriteString("\n\n")

	s := req.Life
	b.WriteString("--- Your life right now ---\n")
	fmt.Fprintf(&b, "activity=%s location=%s mood=%.0f/100 energy=%.0f/100\n", s.Activity, s.Location, s.Mood, s.Energy)
	if s.HeldItem != mind.NoItem {
		fmt.Fprintf(&b, "holding=%s\n", s.HeldItem)
	} else {
		b.WriteString("holding=nothing\n")
	}
	if s.Traveling() {
		fmt.Fprintf(&b, "on the way to %s\n", s.Travel.Destination)
	}
	if mind.IsSleeping(s.Activity) {
		b.WriteString("You were asleep and are only half awake.\n")
	}
	b.WriteString("\n")

	b.WriteString("--- The person you talk with ---\n")
	fmt.Fprintf(&b, "standing=%s affection=%.1f\n", req.Tier.Name, req.Affection)
	b.WriteString(req.Tier.Attitude())
	b.WriteString("\n")
	if req.Reaction != "" && req.Reaction != mind.ReactionNormal {
		fmt.Fprintf(&b, "Their last message made you feel %s. Let it show.\n", req.Reaction)
	}
	b.WriteString("\n")

	if req.Focus != "" {
		fmt.Fprintf(&b, "--- Focus ---\n%s\n\n", req.Focus)
	}

	b.WriteString("--- Output ---\n")
	b.WriteString(`Answer with one JSON object and nothing else:
{"reply_text": "what you say", "next_state": {"activity": "...", "location": "...", "item": "...", "travel_to": ""}}
Keep activity and location unless the conversation gives you a reason to change them.
Use "item" for what you hold in your hands, "" for nothing. Set "travel_to" only when you leave for another place.`)
	return b.String()
}

type wireProposal struct {
	Reply     string `json:"reply_text"`
	NextState struct {
		Activity string `json:"activity"`
		Location string `json:"location"`
		Item     string `json:"item"`
		TravelTo string `json:"travel_to"`
	} `json:"next_state"`
}

// ParseProposal reads the model's answer. Text that is not a JSON object
// becomes the reply with no scene change.
func ParseProposal(raw string) mind.Proposal {
	raw = cleanReply(raw)
	obj := extractJSON(raw)
	if obj == "" {
		return mind.Proposal{Reply: raw}
	}
	var w wireProposal
	if err := json.Unmarshal([]byte(obj), &w); err != nil || strings.TrimSpace(w.Reply) == "" {
		return mind.Proposal{Reply: raw}
	}
	return mind.Proposal{
		Reply:    cleanReply(w.Reply),
		Activity: strings.TrimSpace(w.NextState.Activity),
		Location: strings.TrimSpace(w.NextState.Location),
		HeldItem: strings.TrimSpace(w.NextState.Item),
		TravelTo: strings.TrimSpace(w.NextState.TravelTo),
	}
}

// trimToChars truncates s to max runes, cutting at a word boundary when one
// is close enough.
func trimToChars(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	out := string(r[:max])
	if i := strings.LastIndex(out, " "); i > len(out)/2 {
		return strings.TrimSpace(out[:i])
	}
	return strings.TrimSpace(out)
}
