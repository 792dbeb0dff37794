package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "learned_powers.json")
	s := NewStore(path, zap.NewNop())

	if got := s.Load(); len(got) != 0 {
		t.Fatalf("Load on missing file = %v, want empty", got)
	}

	want := map[string]float64{"cp1": 4500, "cp2": 7500}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := s.Load()
	if len(got) != len(want) {
		t.Fatalf("Load = %v, want %v", got, want)
	}
	for id, watts := range want {
		if got[id] != watts {
			t.Fatalf("Load[%s] = %v, want %v", id, got[id], watts)
		}
	}
}

func TestLoadMalformedFileTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "learned_powers.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := NewStore(path, zap.NewNop())
	if got := s.Load(); len(got) != 0 {
		t.Fatalf("Load of malformed file = %v, want empty", got)
	}
}
