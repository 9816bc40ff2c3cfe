package mind

import (
	"testing"
	"time"
)

const (
	hostileText = "you are stupid"
	neutralText = "what are you doing"
)

func TestTierOf_IsMonotone(t *testing.T) {
	prev := TierOf(-500)
	for a := -500.0; a <= 1200; a += 0.5 {
		cur := TierOf(a)
		if cur.Rank < prev.Rank {
			t.Fatalf("rank dropped from %d to %d at affection %v", prev.Rank, cur.Rank, a)
		}
		prev = cur
	}
}

func TestTierOf_Boundaries(t *testing.T) {
	tests := []struct {
		affection float64
		name      string
		rank      int
	}{
		{0, "Passing Spectator", 0},
		{9.9, "Passing Spectator", 0},
		{10, "Ticket Holder", 1},
		{1000, "Eternal Contract", 16},
		{-0.5, "Stranger", -1},
		{-10, "Rude One", -2},
		{-60, "Expelled Guest", -4},
		{-100, "Blacklisted", BlacklistedRank},
		{-5000, "Blacklisted", BlacklistedRank},
	}
	for _, tt := range tests {
		got := TierOf(tt.affection)
		if got.Name != tt.name || got.Rank != tt.rank {
			t.Errorf("TierOf(%v) = %s/%d, want %s/%d", tt.affection, got.Name, got.Rank, tt.name, tt.rank)
		}
	}
}

func TestClassify(t *testing.T) {
	c := NewKeywordClassifier(nil)
	tests := []struct {
		text string
		has  []Intent
		not  []Intent
	}{
		{"I love you", []Intent{IntentAffectionate}, nil},
		{"goodbye, idiot", []Intent{IntentHostile}, []Intent{IntentFarewell}},
		{"ok goodbye then", []Intent{IntentFarewell}, nil},
		{"a description of the weather", nil, []Intent{IntentGiftHigh}},
		{"here, a limited edition gem", []Intent{IntentGiftHigh}, nil},
		{"你好讨厌", []Intent{IntentHostile}, nil},
		{"sorry, don't be angry", []Intent{IntentComforting}, nil},
	}
	for _, tt := range tests {
		got := c.Classify(tt.text)
		for _, i := range tt.has {
			if !got.Has(i) {
				t.Errorf("%q: missing %s in %v", tt.text, i, got.Sorted())
			}
		}
		for _, i := range tt.not {
			if got.Has(i) {
				t.Errorf("%q: unexpected %s", tt.text, i)
			}
		}
	}
}

func applyAll(m *RelationshipMachine, rel Relationship, texts ...string) (Relationship, []Impact) {
	var impacts []Impact
	for _, text := range texts {
		var imp Impact
		rel, imp, _ = m.Apply(rel, text, t0)
		impacts = append(impacts, imp)
	}
	return rel, impacts
}

func TestApply_ProvocationStreakEscalates(t *testing.T) {
	m := NewRelationshipMachine(DefaultConfig(), nil)

	streak, _ := applyAll(m, Relationship{UserID: "u"}, hostileText, hostileText, hostileText)
	if !approx(streak.Affection, -45) {
		t.Errorf("three insults in a row: affection %v, want -45", streak.Affection)
	}
	if streak.ProvocationStreak != 3 {
		t.Errorf("streak = %d, want 3", streak.ProvocationStreak)
	}

	broken, _ := applyAll(m, Relationship{UserID: "u"}, hostileText, neutralText, hostileText)
	if !approx(broken.Affection, -19.5) {
		t.Errorf("insults split by small talk: affection %v, want -19.5", broken.Affection)
	}
}

func TestApply_HostilityWeighsByStanding(t *testing.T) {
	m := NewRelationshipMachine(DefaultConfig(), nil)
	beloved, _ := applyAll(m, Relationship{Affection: 900}, hostileText)
	if !approx(beloved.Affection, 895) {
		t.Errorf("beloved affection = %v, want 895", beloved.Affection)
	}
	hated, _ := applyAll(m, Relationship{Affection: -30}, hostileText)
	if !approx(hated.Affection, -45) {
		t.Errorf("hated affection = %v, want -45", hated.Affection)
	}
}

func TestApply_GiftSpamStopsPaying(t *testing.T) {
	m := NewRelationshipMachine(DefaultConfig(), nil)
	rel, impacts := applyAll(m, Relationship{UserID: "u"}, "a cake", "a cake", "a cake", "a cake")
	if !approx(rel.Affection, 15) {
		t.Errorf("affection = %v, want 15", rel.Affection)
	}
	last := impacts[3]
	if last.Affection != 0 || last.Mood != -5 {
		t.Errorf("fourth gift impact = %+v, want 0 affection and -5 mood", last)
	}
	if rel.GiftStreak != 4 {
		t.Errorf("gift streak = %d", rel.GiftStreak)
	}

	rel, _ = applyAll(m, rel, neutralText, "a cake")
	if rel.GiftStreak != 1 {
		t.Errorf("gift streak after a break = %d, want 1", rel.GiftStreak)
	}
}

func TestApply_ComfortAfterProvocation(t *testing.T) {
	m := NewRelationshipMachine(DefaultConfig(), nil)
	rel, impacts := applyAll(m, Relationship{UserID: "u"}, hostileText, "sorry, don't be angry")
	if !approx(impacts[1].Affection, 18) || impacts[1].Reaction != ReactionTouched {
		t.Errorf("comfort impact = %+v, want +18 touched", impacts[1])
	}
	if rel.ProvocationStreak != 0 || !approx(rel.Affection, 8) {
		t.Errorf("rel = %+v", rel)
	}
}

func TestApply_DailyWelcomeBack(t *testing.T) {
	m := NewRelationshipMachine(DefaultConfig(), nil)
	yesterday := t0.Add(-24 * time.Hour).Format(time.DateOnly)

	rel, imp, _ := m.Apply(Relationship{LastActiveDate: yesterday}, neutralText, t0)
	if !approx(imp.Affection, 10.5) || !approx(imp.Mood, 10.5) {
		t.Errorf("impact = %+v, want +10.5/+10.5", imp)
	}
	if rel.LastActiveDate != t0.Format(time.DateOnly) {
		t.Errorf("last active date = %q", rel.LastActiveDate)
	}

	_, imp, _ = m.Apply(rel, neutralText, t0.Add(time.Hour))
	if !approx(imp.Affection, 0.5) {
		t.Errorf("second message the same day = %+v, want plain drift", imp)
	}

	_, imp, _ = m.Apply(Relationship{LastActiveDate: yesterday}, hostileText, t0)
	if !approx(imp.Affection, -10) {
		t.Errorf("insult on a new day = %+v, want no bonus", imp)
	}

	_, imp, _ = m.Apply(Relationship{}, neutralText, t0)
	if !approx(imp.Affection, 0.5) {
		t.Errorf("first ever message = %+v, want no bonus", imp)
	}
}

func TestApply_ShortNeutralIsFlat(t *testing.T) {
	m := NewRelationshipMachine(DefaultConfig(), nil)
	_, imp, _ := m.Apply(Relationship{}, "ok", t0)
	if imp.Affection != 0 || imp.Mood != 0 {
		t.Errorf("impact = %+v", imp)
	}
}
