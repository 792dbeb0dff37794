package bridge

import (
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ocpp-gateway/internal/ocppframe"
)

// clamp restricts v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SendSetChargingProfile issues a SetChargingProfile frame to the charger
// directly over its downstream connection (spec §4.3: gateway-originated
// frames flow downstream only). limitW is clamped to
// [0, learned_max_power_w] and rounded to two decimals before being sent;
// on success the charger's current_limit_w is updated to match.
func (g *Gateway) SendSetChargingProfile(id string, limitW float64) {
	state, ok := g.registry.Get(id)
	if !ok {
		return
	}
	snap := state.Snapshot()
	limit := round2(clamp(limitW, 0, snap.LearnedMaxPowerW))

	msgID := uuid.NewString()
	payload := map[string]any{
		"connectorId": 0,
		"csChargingProfiles": map[string]any{
			"chargingProfileId":      gatewayChargingProfileID,
			"stackLevel":             1,
			"chargingProfilePurpose": "ChargePointMaxProfile",
			"chargingProfileKind":    "Recurring",
			"recurrencyKind":         "Daily",
			"chargingSchedule": map[string]any{
				"chargingRateUnit": "W",
				"chargingSchedulePeriod": []map[string]any{
					{"startPeriod": 0, "limit": limit},
				},
			},
		},
	}

	frame, err := ocppframe.BuildCall(msgID, "SetChargingProfile", payload)
	if err != nil {
		g.logger.Error("failed to build SetChargingProfile frame", zap.String("charger_id", id), zap.Error(err))
		return
	}

	g.pending.Add(msgID)
	if err := g.sendToDownstream(id, frame); err != nil {
		g.logger.Warn("failed to send SetChargingProfile", zap.String("charger_id", id), zap.Error(err))
		return
	}

	state.SetLimit(limit)
	if g.Metrics != nil {
		g.Metrics.SetChargerLimit(id, limit)
	}
}

// SendTriggerMessage issues a TriggerMessage(MeterValues) request directly
// to the charger (spec §4.3/§4.5).
func (g *Gateway) SendTriggerMessage(id string) {
	msgID := uuid.NewString()
	payload := map[string]any{"requestedMessage": "MeterValues"}

	frame, err := ocppframe.BuildCall(msgID, "TriggerMessage", payload)
	if err != nil {
		g.logger.Error("failed to build TriggerMessage frame", zap.String("charger_id", id), zap.Error(err))
		return
	}

	g.pending.Add(msgID)
	if err := g.sendToDownstream(id, frame); err != nil {
		g.logger.Warn("failed to send TriggerMessage", zap.String("charger_id", id), zap.Error(err))
	}
}
