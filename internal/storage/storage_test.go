package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"living-persona/internal/mind"

	"github.com/rs/zerolog"
)

func backends(t *testing.T) map[string]func(path string) Store {
	t.Helper()
	return map[string]func(string) Store{
		"memory": func(string) Store { return NewMemory() },
		"json": func(dir string) Store {
			s, err := OpenJSON(filepath.Join(dir, "persona.json"), zerolog.Nop())
			if err != nil {
				t.Fatalf("open json: %v", err)
			}
			return s
		},
		"sqlite": func(dir string) Store {
			s, err := OpenSQLite(filepath.Join(dir, "persona.db"), zerolog.Nop())
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return s
		},
	}
}

func TestBackends_RoundTrip(t *testing.T) {
	now := time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC)
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t.TempDir())
			defer s.Close()

			if _, err := s.LoadLife(); !errors.Is(err, mind.ErrNoRecord) {
				t.Fatalf("empty LoadLife err = %v, want ErrNoRecord", err)
			}
			if _, err := s.LoadRelationship("u1"); !errors.Is(err, mind.ErrNoRecord) {
				t.Fatalf("empty LoadRelationship err = %v, want ErrNoRecord", err)
			}

			life := mind.LifeState{
				Mood: 61, Energy: 42, Activity: "having afternoon tea", Location: "cafe",
				HeldItem: "teacup", LastUpdateAt: now, LastSwitchAt: now, LastActiveAt: now,
				Travel: &mind.Travel{Destination: "seaside", PendingActivity: "feeding pigeons", StartedAt: now},
			}
			if err := s.SaveLife(life); err != nil {
				t.Fatalf("save life: %v", err)
			}
			got, err := s.LoadLife()
			if err != nil {
				t.Fatalf("load life: %v", err)
			}
			if got.Activity != life.Activity || got.Energy != life.Energy || got.Travel == nil || got.Travel.Destination != "seaside" {
				t.Errorf("life = %+v", got)
			}
			if !got.LastUpdateAt.Equal(now) {
				t.Errorf("LastUpdateAt = %v, want %v", got.LastUpdateAt, now)
			}

			rel := mind.Relationship{UserID: "u1", Affection: -12.5, ProvocationStreak: 2, GiftStreak: 1, LastActiveDate: "2026-05-04"}
			if err := s.SaveRelationship(rel); err != nil {
				t.Fatalf("save relationship: %v", err)
			}
			gotRel, err := s.LoadRelationship("u1")
			if err != nil {
				t.Fatalf("load relationship: %v", err)
			}
			if gotRel != rel {
				t.Errorf("relationship = %+v, want %+v", gotRel, rel)
			}

			hist := []mind.Utterance{{Role: mind.RoleUser, Text: "hello", At: now}, {Role: mind.RolePersona, Text: "hi!", At: now}}
			if err := s.SaveHistory("u1", hist); err != nil {
				t.Fatalf("save history: %v", err)
			}
			gotHist, err := s.LoadHistory("u1")
			if err != nil {
				t.Fatalf("load history: %v", err)
			}
			if len(gotHist) != 2 || gotHist[1].Text != "hi!" || gotHist[1].Role != mind.RolePersona {
				t.Errorf("history = %+v", gotHist)
			}
		})
	}
}

func TestJSON_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.json")
	s, err := OpenJSON(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	s.SaveRelationship(mind.Relationship{UserID: "u1", Affection: 30})
	s.SaveRelationship(mind.Relationship{UserID: "u2", Affection: -3})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	again, err := OpenJSON(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	r, err := again.LoadRelationship("u1")
	if err != nil || r.Affection != 30 {
		t.Errorf("after reopen: %+v, %v", r, err)
	}
	if users, _ := again.Users(); len(users) != 2 {
		t.Errorf("users = %v", users)
	}
}

func TestBackends_ForgetUser(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t.TempDir())
			defer s.Close()
			for _, id := range []string{"bob", "alice"} {
				if err := s.SaveRelationship(mind.Relationship{UserID: id, Affection: 12}); err != nil {
					t.Fatal(err)
				}
				if err := s.SaveHistory(id, []mind.Utterance{{Role: mind.RoleUser, Text: "hi"}}); err != nil {
					t.Fatal(err)
				}
			}
			users, err := s.Users()
			if err != nil || len(users) != 2 || users[0] != "alice" {
				t.Fatalf("users = %v, %v", users, err)
			}

			if err := s.Forget("bob"); err != nil {
				t.Fatal(err)
			}
			if _, err := s.LoadRelationship("bob"); !errors.Is(err, mind.ErrNoRecord) {
				t.Errorf("relationship after forget: %v", err)
			}
			if _, err := s.LoadHistory("bob"); !errors.Is(err, mind.ErrNoRecord) {
				t.Errorf("history after forget: %v", err)
			}
			if users, _ := s.Users(); len(users) != 1 || users[0] != "alice" {
				t.Errorf("users after forget = %v", users)
			}
		})
	}
}

func TestJSON_CorruptRecordIsNotMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.json")
	if err := os.WriteFile(path, []byte(`{"life": "not an object"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := OpenJSON(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	_, err = s.LoadLife()
	if err == nil || errors.Is(err, mind.ErrNoRecord) {
		t.Errorf("err = %v, want a decode error", err)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open("redis", "", zerolog.Nop()); err == nil {
		t.Error("expected error for unknown backend")
	}
}
