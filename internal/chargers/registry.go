package chargers

import (
	"sync"

	"go.uber.org/zap"
)

// PowerStore is the subset of internal/persistence.Store the registry
// depends on - kept as an interface so registry tests can fake it.
type PowerStore interface {
	Save(data map[string]float64) error
}

// Registry is the process-wide charger_id -> State map. Entries are created
// on first-ever connection and never removed for the life of the process
// (spec §3 Lifecycle).
type Registry struct {
	mu       sync.RWMutex
	chargers map[string]*State

	store       PowerStore
	defaultSeed float64
	logger      *zap.Logger
}

func NewRegistry(store PowerStore, defaultSeed float64, logger *zap.Logger) *Registry {
	return &Registry{
		chargers:    make(map[string]*State),
		store:       store,
		defaultSeed: defaultSeed,
		logger:      logger,
	}
}

// Seed loads persisted learned-power values before the first connection is
// accepted, so a reconnecting charger's learned_max_power_w survives a
// gateway restart.
func (r *Registry) Seed(learned map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, watts := range learned {
		r.chargers[id] = NewState(id, watts)
	}
}

// GetOrCreate returns the existing record for id, or creates one seeded from
// persistence/default and persists the new charger list immediately (spec
// §3: "rewritten ... when a new charger is first seen").
func (r *Registry) GetOrCreate(id string) (state *State, created bool) {
	r.mu.RLock()
	s, ok := r.chargers[id]
	r.mu.RUnlock()
	if ok {
		return s, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.chargers[id]; ok {
		return s, false
	}
	s = NewState(id, r.defaultSeed)
	r.chargers[id] = s
	r.persistLocked()
	return s, true
}

// Get returns the record for id without creating it.
func (r *Registry) Get(id string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.chargers[id]
	return s, ok
}

// PersistLearned rewrites the backing store with every charger's current
// learned_max_power_w. Called after a learning event (spec §4.2/§4.7).
func (r *Registry) PersistLearned() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.persistLocked()
}

func (r *Registry) persistLocked() {
	if r.store == nil {
		return
	}
	out := make(map[string]float64, len(r.chargers))
	for id, s := range r.chargers {
		snap := s.Snapshot()
		out[id] = snap.LearnedMaxPowerW
	}
	if err := r.store.Save(out); err != nil {
		r.logger.Warn("failed to persist learned powers", zap.Error(err))
	}
}

// Snapshot returns a point-in-time copy of every charger record, for the
// demand-control and trigger loops to read without holding any charger's
// lock while they do their own work.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.chargers))
	for _, s := range r.chargers {
		out = append(out, s.Snapshot())
	}
	return out
}
