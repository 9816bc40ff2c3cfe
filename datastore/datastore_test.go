package datastore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type record struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func openTemp(t *testing.T) (*DataStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	cfg := DefaultConfig(path)
	cfg.AutoSaveInterval = 0
	ds, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return ds, path
}

func TestPutGet_SurvivesReopen(t *testing.T) {
	ds, path := openTemp(t)
	if err := ds.Put("user:1", record{Name: "neuvillette", Score: 42}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	again, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()

	var got record
	ok, err := again.Get("user:1", &got)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Name != "neuvillette" || got.Score != 42 {
		t.Errorf("got %+v", got)
	}
}

func TestGet_Missing(t *testing.T) {
	ds, _ := openTemp(t)
	defer ds.Close()
	var r record
	ok, err := ds.Get("nope", &r)
	if ok || err != nil {
		t.Errorf("ok=%v err=%v, want false nil", ok, err)
	}
}

func TestCorruptFile_IsQuarantined(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig(path)
	cfg.AutoSaveInterval = 0
	ds, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("open corrupt: %v", err)
	}
	defer ds.Close()

	if keys := ds.Keys(""); len(keys) != 0 {
		t.Errorf("keys = %v, want empty", keys)
	}
	entries, _ := os.ReadDir(dir)
	found := false
	for _, e := range entries {
		if strings.Contains(e.Name(), ".corrupt.") {
			found = true
		}
	}
	if !found {
		t.Error("corrupt file was not moved aside")
	}
}

func TestKeys_Prefix(t *testing.T) {
	ds, _ := openTemp(t)
	defer ds.Close()
	ds.Put("user:b", 1)
	ds.Put("user:a", 1)
	ds.Put("life", 1)

	keys := ds.Keys("user:")
	if len(keys) != 2 || keys[0] != "user:a" || keys[1] != "user:b" {
		t.Errorf("keys = %v", keys)
	}
}

func TestClosed_RejectsWrites(t *testing.T) {
	ds, _ := openTemp(t)
	ds.Close()
	if err := ds.Put("k", 1); err != ErrClosed {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}
