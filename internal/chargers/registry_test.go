package chargers

import (
	"testing"

	"go.uber.org/zap"
)

type fakeStore struct {
	saved map[string]float64
	calls int
}

func (f *fakeStore) Save(data map[string]float64) error {
	f.calls++
	f.saved = data
	return nil
}

func TestGetOrCreatePersistsOnFirstSeen(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(store, 3600, zap.NewNop())

	s1, created1 := r.GetOrCreate("cp1")
	if !created1 {
		t.Fatalf("expected created=true on first call")
	}
	if s1.Snapshot().LearnedMaxPowerW != 3600 {
		t.Fatalf("new charger should seed from default")
	}
	if store.calls != 1 {
		t.Fatalf("expected persistence on first-seen charger, got %d calls", store.calls)
	}

	_, created2 := r.GetOrCreate("cp1")
	if created2 {
		t.Fatalf("expected created=false on reconnect of known charger")
	}
	if store.calls != 1 {
		t.Fatalf("reconnect must not trigger another persist, got %d calls", store.calls)
	}
}

func TestSeedPreloadsFromPersistence(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(store, 3600, zap.NewNop())
	r.Seed(map[string]float64{"cp1": 7500})

	s, created := r.GetOrCreate("cp1")
	if created {
		t.Fatalf("seeded charger must not be reported as newly created")
	}
	if s.Snapshot().LearnedMaxPowerW != 7500 {
		t.Fatalf("learned_max_power_w = %v, want 7500 from seed", s.Snapshot().LearnedMaxPowerW)
	}
}

func TestPersistLearnedWritesEveryChargerCurrentLearnedMax(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(store, 3600, zap.NewNop())
	s, _ := r.GetOrCreate("cp1")
	s.ApplyMeterValues(5000)

	r.PersistLearned()

	if store.saved["cp1"] != 5000 {
		t.Fatalf("persisted learned power = %v, want 5000", store.saved["cp1"])
	}
}
