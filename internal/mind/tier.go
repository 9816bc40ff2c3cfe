package mind

// Tier is one rung of the relationship ladder. Rank grows with affection
// across both ladders, so comparing ranks compares tiers.
type Tier struct {
	Name      string  `json:"name"`
	Rank      int     `json:"rank"`
	Threshold float64 `json:"threshold"`
}

// Score is the ordering weight used when several users compete for a turn.
func (t Tier) Score() float64 { return float64(t.Rank) }

// Positive ladder, ascending. A tier holds from its threshold up to the next.
var positiveLadder = []Tier{
	{"Passing Spectator", 0, 0},
	{"Ticket Holder", 1, 10},
	{"Front-Row Listener", 2, 25},
	{"Familiar Face", 3, 45},
	{"Curious Fan", 4, 70},
	{"Devoted Fan", 5, 100},
	{"Backstage Regular", 6, 140},
	{"Tea Party Guest", 7, 190},
	{"Trusted Attendant", 8, 250},
	{"Knight Candidate", 9, 320},
	{"Personal Guard", 10, 400},
	{"Best Partner", 11, 490},
	{"Confidant", 12, 590},
	{"Irreplaceable", 13, 700},
	{"Honored Companion", 14, 820},
	{"Soul Resonance", 15, 950},
	{"Eternal Contract", 16, 1000},
}

// Negative ladder, descending. A tier holds from its threshold down to the next.
var negativeLadder = []Tier{
	{"Stranger", -1, 0},
	{"Rude One", -2, -10},
	{"Unwelcome", -3, -20},
	{"Expelled Guest", -4, -60},
	{"Blacklisted", -5, -100},
}

// BlacklistedRank is the bottom of the negative ladder.
const BlacklistedRank = -5

// Affection marks where impact magnitudes change.
const (
	BelovedAffection = 800
	HatedAffection   = -20
)

// TierOf maps affection to its ladder rung. It is monotone: more affection
// never yields a lower Rank.
func TierOf(affection float64) Tier {
	if affection >= 0 {
		cur := positiveLadder[0]
		for _, t := range positiveLadder[1:] {
			if affection < t.Threshold {
				break
			}
			cur = t
		}
		return cur
	}
	cur := negativeLadder[0]
	for _, t := range negativeLadder[1:] {
		if affection > t.Threshold {
			break
		}
		cur = t
	}
	return cur
}

// Attitude is a short description of how the persona treats this tier.
func (t Tier) Attitude() string {
	switch {
	case t.Rank <= -4:
		return "You despise this person and want them gone. Answer coldly, if at all."
	case t.Rank == -3:
		return "You dislike this person. Be curt and guarded."
	case t.Rank <= -1:
		return "This person is a stranger or has been rude. Stay polite but distant."
	case t.Rank <= 3:
		return "This person is a new acquaintance. Be theatrical and a little proud."
	case t.Rank <= 9:
		return "This person is a friend. Be warm, playful and honest."
	case t.Rank <= 13:
		return "This person is very close to you. Let your guard down."
	default:
		return "This person is your beloved. Be tender and openly affectionate."
	}
}
