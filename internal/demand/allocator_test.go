package demand

import (
	"math"
	"testing"

	"ocpp-gateway/internal/chargers"
)

const epsilon = 0.01

func approxEqual(a, b float64) bool { return math.Abs(a-b) < epsilon }

// S1 — Proportional split under overload (spec §8).
func TestAllocateScenarioS1ProportionalSplitUnderOverload(t *testing.T) {
	cfg := Config{MaxTotalPowerW: 30000, MinChargePowerW: 1380}
	snapshots := []chargers.Snapshot{
		{ID: "cp1", Status: chargers.StatusCharging, CurrentPowerW: 25000, LearnedMaxPowerW: 30000, CurrentLimitW: 30000},
		{ID: "cp2", Status: chargers.StatusCharging, CurrentPowerW: 7500, LearnedMaxPowerW: 7500, CurrentLimitW: 7500},
	}

	decisions := Allocate(cfg, 32500, snapshots)
	if len(decisions) != 2 {
		t.Fatalf("len(decisions) = %d, want 2", len(decisions))
	}

	byID := map[string]Decision{}
	for _, d := range decisions {
		byID[d.ChargerID] = d
	}

	if !approxEqual(byID["cp1"].NewLimitW, 24000) {
		t.Fatalf("cp1 new limit = %v, want ~24000", byID["cp1"].NewLimitW)
	}
	if !approxEqual(byID["cp2"].NewLimitW, 6000) {
		t.Fatalf("cp2 new limit = %v, want ~6000", byID["cp2"].NewLimitW)
	}
	if !byID["cp1"].Send || !byID["cp2"].Send {
		t.Fatalf("both chargers must be sent a new profile: %+v", decisions)
	}
}

// S6 — Site-aware allocation for a charger that just entered Charging with
// zero instantaneous demand (spec §8).
func TestAllocateScenarioS6SiteAwareAllocation(t *testing.T) {
	cfg := Config{MaxTotalPowerW: 60000, MinChargePowerW: 1380}
	snapshots := []chargers.Snapshot{
		{ID: "cp1", Status: chargers.StatusCharging, CurrentPowerW: 0, LearnedMaxPowerW: 7500, CurrentLimitW: 7500},
	}

	decisions := Allocate(cfg, 55000, snapshots)
	if len(decisions) != 1 {
		t.Fatalf("len(decisions) = %d, want 1", len(decisions))
	}
	if !approxEqual(decisions[0].NewLimitW, 5000) {
		t.Fatalf("new limit = %v, want ~5000", decisions[0].NewLimitW)
	}
}

func TestAllocateSkipsWhenNoChargingStations(t *testing.T) {
	cfg := Config{MaxTotalPowerW: 60000, MinChargePowerW: 1380}
	snapshots := []chargers.Snapshot{
		{ID: "cp1", Status: chargers.StatusAvailable, LearnedMaxPowerW: 7500},
	}
	if d := Allocate(cfg, 1000, snapshots); d != nil {
		t.Fatalf("Allocate with no charging stations = %v, want nil", d)
	}
}

func TestAllocateNeverExceedsLearnedMax(t *testing.T) {
	cfg := Config{MaxTotalPowerW: 60000, MinChargePowerW: 1380}
	snapshots := []chargers.Snapshot{
		{ID: "cp1", Status: chargers.StatusCharging, CurrentPowerW: 100, LearnedMaxPowerW: 3600, CurrentLimitW: 100},
	}
	// Site power is far below the cap, so the naive share could exceed the
	// charger's own learned maximum; it must be clamped (spec §8 property 2).
	decisions := Allocate(cfg, 0, snapshots)
	if len(decisions) != 1 {
		t.Fatalf("len(decisions) = %d, want 1", len(decisions))
	}
	if decisions[0].NewLimitW > 3600+epsilon {
		t.Fatalf("new limit %v exceeds learned_max_power_w 3600", decisions[0].NewLimitW)
	}
}

func TestAllocateNeverBelowMinChargePower(t *testing.T) {
	cfg := Config{MaxTotalPowerW: 1000, MinChargePowerW: 1380}
	snapshots := []chargers.Snapshot{
		{ID: "cp1", Status: chargers.StatusCharging, CurrentPowerW: 900, LearnedMaxPowerW: 30000, CurrentLimitW: 900},
		{ID: "cp2", Status: chargers.StatusCharging, CurrentPowerW: 900, LearnedMaxPowerW: 30000, CurrentLimitW: 900},
	}
	decisions := Allocate(cfg, 200000, snapshots)
	for _, d := range decisions {
		if d.NewLimitW < cfg.MinChargePowerW-epsilon {
			t.Fatalf("charger %s new limit %v below floor %v", d.ChargerID, d.NewLimitW, cfg.MinChargePowerW)
		}
	}
}
