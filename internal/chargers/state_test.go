package chargers

import "testing"

func TestApplyStatusNotificationSchedulesCapRestore(t *testing.T) {
	s := NewState("cp1", 3600)
	s.Status = StatusCharging
	s.CurrentLimitW = 2000

	needsRestore, learnedMax := s.ApplyStatusNotification(StatusFinishing)
	if !needsRestore {
		t.Fatalf("expected cap restore on Charging -> Finishing")
	}
	if learnedMax != 3600 {
		t.Fatalf("learnedMax = %v, want 3600", learnedMax)
	}

	// Charging -> SuspendedEV must NOT schedule a restore (spec §4.2).
	s2 := NewState("cp2", 3600)
	s2.Status = StatusCharging
	needsRestore2, _ := s2.ApplyStatusNotification(StatusSuspendedEV)
	if needsRestore2 {
		t.Fatalf("Charging -> SuspendedEV must not trigger a cap restore")
	}
}

func TestApplyMeterValuesInferenceAndLearning(t *testing.T) {
	s := NewState("cp1", 3600)

	// S3: 4.5kW sample on a charger seeded at 3600W learns a new max.
	needsRestore, learned, learnedMax := s.ApplyMeterValues(4500)
	if !learned {
		t.Fatalf("expected learning event for 4500W > 1.01*3600")
	}
	if learnedMax != 4500 {
		t.Fatalf("learnedMax = %v, want 4500", learnedMax)
	}
	if needsRestore {
		t.Fatalf("unexpected cap restore from a learning-only update")
	}
	snap := s.Snapshot()
	if snap.CurrentLimitW != 4500 {
		t.Fatalf("current_limit_w = %v, want 4500", snap.CurrentLimitW)
	}

	// Power above 500W while not already Charging/Suspended* forces Charging.
	s2 := NewState("cp2", 7500)
	s2.Status = StatusAvailable
	s2.ApplyMeterValues(600)
	if s2.Snapshot().Status != StatusCharging {
		t.Fatalf("status = %v, want Charging after power > 500W", s2.Snapshot().Status)
	}

	// Power dropping to <=500W while Charging forces Available + cap restore.
	s3 := NewState("cp3", 7500)
	s3.Status = StatusCharging
	s3.CurrentLimitW = 4000
	needsRestore3, _, _ := s3.ApplyMeterValues(100)
	if !needsRestore3 {
		t.Fatalf("expected cap restore when power drops below threshold while Charging")
	}
	if s3.Snapshot().Status != StatusAvailable {
		t.Fatalf("status = %v, want Available", s3.Snapshot().Status)
	}
}

func TestBufferPriorityInsertion(t *testing.T) {
	s := NewState("cp1", 3600)

	s.AppendBuffer([]byte(`["DataTransfer"]`))
	s.AppendBuffer([]byte(`["GetConfiguration"]`))
	s.PrependBuffer([]byte(`["RemoteStopTransaction"]`))

	drained := s.DrainBuffer()
	if len(drained) != 3 {
		t.Fatalf("len(drained) = %d, want 3", len(drained))
	}
	if string(drained[0]) != `["RemoteStopTransaction"]` {
		t.Fatalf("drained[0] = %s, want RemoteStopTransaction first (S4)", drained[0])
	}
	if string(drained[1]) != `["DataTransfer"]` || string(drained[2]) != `["GetConfiguration"]` {
		t.Fatalf("remaining order not preserved: %s", drained[1:])
	}

	if d := s.DrainBuffer(); d != nil {
		t.Fatalf("second drain should be empty, got %v", d)
	}
}

func TestSetOfflineAndSetConnectedPreserveLearnedState(t *testing.T) {
	s := NewState("cp1", 3600)
	s.LearnedMaxPowerW = 7500
	s.CurrentLimitW = 6000

	s.SetOffline()
	if s.Snapshot().Status != StatusOffline {
		t.Fatalf("status = %v, want Offline", s.Snapshot().Status)
	}

	s.SetConnected()
	snap := s.Snapshot()
	if snap.Status != StatusAvailable {
		t.Fatalf("status = %v, want Available on reconnect", snap.Status)
	}
	if snap.LearnedMaxPowerW != 7500 || snap.CurrentLimitW != 6000 {
		t.Fatalf("reconnect must not reset learned_max_power_w/current_limit_w, got %+v", snap)
	}
}
