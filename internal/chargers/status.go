package chargers

import "github.com/lorenzodonini/ocpp-go/ocpp1.6/core"

// Status mirrors the OCPP 1.6 StatusNotification.status enum (the teacher's
// internal/ocpp/server.go logs this field as core.ChargePointStatus already),
// plus a gateway-local Offline value for a charger with no downstream
// connection.
type Status = core.ChargePointStatus

const (
	StatusAvailable     Status = core.ChargePointStatusAvailable
	StatusPreparing     Status = core.ChargePointStatusPreparing
	StatusCharging      Status = core.ChargePointStatusCharging
	StatusSuspendedEV   Status = core.ChargePointStatusSuspendedEV
	StatusSuspendedEVSE Status = core.ChargePointStatusSuspendedEVSE
	StatusFinishing     Status = core.ChargePointStatusFinishing
	StatusReserved      Status = core.ChargePointStatusReserved
	StatusUnavailable   Status = core.ChargePointStatusUnavailable
	StatusFaulted       Status = core.ChargePointStatusFaulted

	// StatusOffline has no OCPP wire representation; the gateway assigns it
	// on downstream disconnect.
	StatusOffline Status = "Offline"
)
