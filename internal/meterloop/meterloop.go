// Package meterloop implements the meter-values trigger loop (spec §4.5):
// every 60s, issue a TriggerMessage(MeterValues) to every charger currently
// Charging. Grounded on original_source/local_server.py's
// request_meter_values_loop.
package meterloop

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ocpp-gateway/internal/chargers"
)

// TriggerSender is the subset of bridge.Gateway the loop needs.
type TriggerSender interface {
	SendTriggerMessage(chargerID string)
}

// Loop owns the periodic MeterValues trigger tick.
type Loop struct {
	interval time.Duration
	registry *chargers.Registry
	sender   TriggerSender
	logger   *zap.Logger
}

func NewLoop(interval time.Duration, registry *chargers.Registry, sender TriggerSender, logger *zap.Logger) *Loop {
	return &Loop{interval: interval, registry: registry, sender: sender, logger: logger}
}

func DefaultInterval() time.Duration { return 60 * time.Second }

// Run blocks until ctx is cancelled, ticking every interval. Failures to
// send are logged by the sender and never abort the loop (spec §4.5/§7).
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		l.tickSafely()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (l *Loop) tickSafely() {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("meter-values trigger loop tick panicked, recovering", zap.Any("panic", r))
		}
	}()
	for _, s := range l.registry.Snapshot() {
		if s.Status != chargers.StatusCharging {
			continue
		}
		l.sender.SendTriggerMessage(s.ID)
	}
}
