// Package telemetry implements the optional raw-frame relay, grounded on
// original_source/local_server.py's EXTERNAL_DATA_WS_URL mechanism
// (connect_external_data_ws / send_data_to_external_ws): a second, entirely
// independent WebSocket client that mirrors a copy of every frame the
// gateway observes for an offline analytics pipeline. Disabled when no URL
// is configured; never affects bridge behavior either way.
package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type envelope struct {
	ChargerID string `json:"charger_id"`
	Direction string `json:"direction"`
	Frame     json.RawMessage `json:"frame"`
	Sent      string `json:"sent_at"`
}

// Relay owns a single best-effort connection to the external data sink.
type Relay struct {
	url    string
	logger *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	dialer websocket.Dialer
}

// NewRelay builds an unconnected relay; it starts nothing. Run must be
// called to begin dialing; a Relay with no Run in flight simply drops every
// Mirror call (conn stays nil).
func NewRelay(url string, logger *zap.Logger) *Relay {
	return &Relay{url: url, logger: logger}
}

// Run dials the relay endpoint, retrying a failed dial every 5s, until ctx
// is cancelled. Once a dial succeeds, that connection is kept until ctx is
// cancelled; if it drops, it is not redialled and later Mirror writes to it
// fail (and are logged). It does not read from the socket; the sink is
// write-only from the gateway's perspective.
func (r *Relay) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := r.dialer.DialContext(ctx, r.url, nil)
		if err != nil {
			r.logger.Warn("telemetry relay dial failed, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()

		<-ctx.Done()
		conn.Close()
		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
		return
	}
}

// Mirror sends a copy of frame, tagged with the charger and direction it was
// observed on. Fire-and-forget: any failure is logged and otherwise
// ignored. Mirror is called from many goroutines and the socket allows one
// writer at a time, so writes are serialized under mu; a caller waits for
// its own write and for any write already in progress.
func (r *Relay) Mirror(chargerID, direction string, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn := r.conn
	if conn == nil {
		return
	}

	env := envelope{
		ChargerID: chargerID,
		Direction: direction,
		Frame:     json.RawMessage(frame),
		Sent:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		r.logger.Debug("telemetry relay write failed, dropping frame", zap.Error(err))
	}
}
