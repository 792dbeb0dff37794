package chargers

import "sync"

// State is one per-charger record: status, instantaneous and learned power,
// the currently applied cap, and the store-and-forward buffer. Every field
// is guarded by mu; callers must never hold mu across a socket or file
// operation (see State.Snapshot/DrainBuffer for the copy-then-release
// pattern).
type State struct {
	mu sync.Mutex

	ID string

	Status           Status
	CurrentPowerW    float64
	LearnedMaxPowerW float64
	CurrentLimitW    float64

	buffer [][]byte
}

// NewState seeds a freshly first-seen charger.
func NewState(id string, seedPowerW float64) *State {
	return &State{
		ID:               id,
		Status:           StatusAvailable,
		LearnedMaxPowerW: seedPowerW,
		CurrentLimitW:    seedPowerW,
	}
}

// Snapshot is a point-in-time copy of a State's fields, safe to read without
// holding the charger's lock.
type Snapshot struct {
	ID               string
	Status           Status
	CurrentPowerW    float64
	LearnedMaxPowerW float64
	CurrentLimitW    float64
	BufferDepth      int
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:               s.ID,
		Status:           s.Status,
		CurrentPowerW:    s.CurrentPowerW,
		LearnedMaxPowerW: s.LearnedMaxPowerW,
		CurrentLimitW:    s.CurrentLimitW,
		BufferDepth:      len(s.buffer),
	}
}

// SetOffline marks a charger disconnected, per spec: status goes to Offline
// on every downstream disconnect, no matter what it was mid-transaction.
func (s *State) SetOffline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusOffline
}

// SetConnected marks a charger Available on a fresh downstream accept,
// without touching learned_max_power_w/current_limit_w - those survive
// reconnects.
func (s *State) SetConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusAvailable
}

// ApplyStatusNotification updates status from a StatusNotification request
// and reports whether the transition warrants restoring the cap to the
// learned maximum (spec §4.2: Charging -> anything but {Charging,
// SuspendedEV} schedules a restore).
func (s *State) ApplyStatusNotification(newStatus Status) (needsCapRestore bool, learnedMaxW float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.Status
	s.Status = newStatus
	if old == StatusCharging && newStatus != StatusCharging && newStatus != StatusSuspendedEV {
		needsCapRestore = true
	}
	return needsCapRestore, s.LearnedMaxPowerW
}

// ApplyMeterValues updates current_power_w from a decoded Power.Active.Import
// sample (already normalized to watts), applies the status-inference and
// learning rules from spec §4.2, and reports what follow-up actions the
// caller must take outside the lock: a cap restore, and/or a learned-power
// increase that must be persisted.
func (s *State) ApplyMeterValues(powerW float64) (needsCapRestore, learned bool, learnedMaxW float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CurrentPowerW = powerW

	if powerW > 500 && s.Status != StatusCharging && s.Status != StatusSuspendedEV && s.Status != StatusSuspendedEVSE {
		s.Status = StatusCharging
	} else if powerW <= 500 && s.Status == StatusCharging {
		s.Status = StatusAvailable
		needsCapRestore = true
	}

	if powerW > 1.01*s.LearnedMaxPowerW {
		s.LearnedMaxPowerW = powerW
		s.CurrentLimitW = powerW
		learned = true
	}

	return needsCapRestore, learned, s.LearnedMaxPowerW
}

// SetLimit records a cap the gateway just sent via SetChargingProfile.
func (s *State) SetLimit(limitW float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentLimitW = limitW
}

// AppendBuffer appends a frame awaiting delivery to the back of the queue.
func (s *State) AppendBuffer(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append(s.buffer, frame)
}

// PrependBuffer inserts a frame at the front (priority delivery, used for
// RemoteStopTransaction arriving while downstream is offline).
func (s *State) PrependBuffer(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append([][]byte{frame}, s.buffer...)
}

// DrainBuffer atomically snapshots and clears the buffer so the caller can
// flush it to a socket without holding the lock across I/O.
func (s *State) DrainBuffer() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) == 0 {
		return nil
	}
	drained := s.buffer
	s.buffer = nil
	return drained
}
