package history

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"go.uber.org/zap"

	"ocpp-gateway/internal/ocppframe"
)

// Recorder appends frames the bridge already parses to the non-authoritative
// session-history store. It never gates or blocks bridge forwarding: every
// write runs in its own goroutine and a failure is logged and ignored,
// matching spec §7's persistence-I/O-failure policy extended to this store
// (SPEC_FULL.md: "Session-history store"). Grounded on the teacher's
// internal/ocpp/server.go OnBootNotification/OnStatusNotification/
// OnStartTransaction/OnMeterValues upsert statements, repurposed around a
// charger_id-keyed schema instead of a surrogate-key join.
type Recorder struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewRecorder(db *sql.DB, logger *zap.Logger) *Recorder {
	return &Recorder{db: db, logger: logger}
}

// Observe records whatever of a downstream/upstream frame is worth keeping
// for later inspection. Unknown actions and non-Call frames are ignored.
func (rec *Recorder) Observe(chargerID string, frame *ocppframe.Frame) {
	if frame == nil || frame.Type != ocppframe.Call {
		return
	}
	go rec.observeAsync(chargerID, frame)
}

func (rec *Recorder) observeAsync(chargerID string, frame *ocppframe.Frame) {
	defer func() {
		if r := recover(); r != nil {
			rec.logger.Error("history recorder panicked, recovering", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch frame.Action {
	case "BootNotification":
		err = rec.recordBoot(ctx, chargerID)
	case "StatusNotification":
		err = rec.recordStatus(ctx, chargerID, frame)
	case "StartTransaction":
		err = rec.recordStartTransaction(ctx, chargerID, frame)
	case "StopTransaction":
		err = rec.recordStopTransaction(ctx, chargerID, frame)
	case "MeterValues":
		err = rec.recordMeterValues(ctx, chargerID, frame)
	default:
		return
	}
	if err != nil {
		rec.logger.Warn("history recorder write failed, continuing in memory",
			zap.String("charger_id", chargerID), zap.String("action", frame.Action), zap.Error(err))
	}
}

func (rec *Recorder) recordBoot(ctx context.Context, chargerID string) error {
	_, err := rec.db.ExecContext(ctx, `
		INSERT INTO chargers (charger_id, first_seen, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(charger_id) DO UPDATE SET last_seen = excluded.last_seen
	`, chargerID, time.Now(), time.Now())
	return err
}

type statusNotificationPayload struct {
	Status string `json:"status"`
}

func (rec *Recorder) recordStatus(ctx context.Context, chargerID string, frame *ocppframe.Frame) error {
	var p statusNotificationPayload
	if err := decodePayload(frame, &p); err != nil {
		return nil // malformed payload: nothing sensible to record, not an error
	}
	_, err := rec.db.ExecContext(ctx, `
		INSERT INTO chargers (charger_id, first_seen, last_seen, last_status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(charger_id) DO UPDATE SET last_seen = excluded.last_seen, last_status = excluded.last_status
	`, chargerID, time.Now(), time.Now(), p.Status)
	return err
}

type startTransactionPayload struct {
	ConnectorId int    `json:"connectorId"`
	IdTag       string `json:"idTag"`
	MeterStart  int    `json:"meterStart"`
}

func (rec *Recorder) recordStartTransaction(ctx context.Context, chargerID string, frame *ocppframe.Frame) error {
	var p startTransactionPayload
	if err := decodePayload(frame, &p); err != nil {
		return nil
	}
	_, err := rec.db.ExecContext(ctx, `
		INSERT INTO transactions (charger_id, connector_id, id_tag, start_ts, start_meter_wh)
		VALUES (?, ?, ?, ?, ?)
	`, chargerID, p.ConnectorId, p.IdTag, time.Now(), p.MeterStart)
	return err
}

type stopTransactionPayload struct {
	TransactionId int `json:"transactionId"`
	MeterStop     int `json:"meterStop"`
}

func (rec *Recorder) recordStopTransaction(ctx context.Context, chargerID string, frame *ocppframe.Frame) error {
	var p stopTransactionPayload
	if err := decodePayload(frame, &p); err != nil {
		return nil
	}
	_, err := rec.db.ExecContext(ctx, `
		UPDATE transactions
		SET stop_ts = ?, stop_meter_wh = ?
		WHERE charger_id = ? AND rowid = (
			SELECT rowid FROM transactions WHERE charger_id = ? ORDER BY start_ts DESC LIMIT 1
		)
	`, time.Now(), p.MeterStop, chargerID, chargerID)
	return err
}

type meterValuesPayload struct {
	MeterValue []struct {
		Timestamp    string `json:"timestamp"`
		SampledValue []struct {
			Value     string `json:"value"`
			Measurand string `json:"measurand,omitempty"`
			Unit      string `json:"unit,omitempty"`
		} `json:"sampledValue"`
	} `json:"meterValue"`
}

func (rec *Recorder) recordMeterValues(ctx context.Context, chargerID string, frame *ocppframe.Frame) error {
	var p meterValuesPayload
	if err := decodePayload(frame, &p); err != nil {
		return nil
	}
	for _, mv := range p.MeterValue {
		for _, sample := range mv.SampledValue {
			value, err := strconv.ParseFloat(sample.Value, 64)
			if err != nil {
				continue
			}
			if _, err := rec.db.ExecContext(ctx, `
				INSERT INTO meter_values (charger_id, ts, measurand, unit, value)
				VALUES (?, ?, ?, ?, ?)
			`, chargerID, time.Now(), sample.Measurand, sample.Unit, value); err != nil {
				return err
			}
		}
	}
	return nil
}
