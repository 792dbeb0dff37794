package bridge

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ocpp-gateway/internal/chargers"
	"ocpp-gateway/internal/ocppframe"
)

// AcceptDownstream is the http.HandlerFunc for the downstream listener
// (spec §4.1/§6). One call handles one charger's connection lifetime.
func (g *Gateway) AcceptDownstream(w http.ResponseWriter, r *http.Request) {
	id := chargerIDFromPath(r.URL.Path)
	if id == "" {
		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(1011, "Charge Point ID not specified"),
			time.Now().Add(5*time.Second),
		)
		conn.Close()
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("downstream upgrade failed", zap.String("charger_id", id), zap.Error(err))
		return
	}

	state, created := g.registry.GetOrCreate(id)
	if !created {
		state.SetConnected()
	}

	peer := &downstreamPeer{conn: conn}
	g.mu.Lock()
	g.downstream[id] = peer
	g.mu.Unlock()

	if g.Metrics != nil {
		g.Metrics.SetActiveChargers(len(g.ConnectedChargerIDs()))
	}

	g.ensureUpstreamTask(id)

	// Anything queued upstream->downstream while this charger was offline
	// (including priority-inserted RemoteStopTransaction frames) goes out
	// now, in order (spec §8 property 5 / scenario S4).
	g.flushBuffer(id, state, func(frame []byte) error {
		return g.sendToDownstream(id, frame)
	})

	defer func() {
		g.mu.Lock()
		delete(g.downstream, id)
		g.mu.Unlock()
		state.SetOffline()
		g.cancelUpstreamTask(id)
		conn.Close()
		if g.Metrics != nil {
			g.Metrics.SetActiveChargers(len(g.ConnectedChargerIDs()))
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		g.handleDownstreamFrame(id, state, data)
	}
}

func (g *Gateway) handleDownstreamFrame(id string, state *chargers.State, data []byte) {
	g.mirror(id, "downstream", data)

	frame, err := ocppframe.Parse(data)
	if err != nil {
		// Frame-malformed: log, still forward verbatim, don't touch state
		// (spec §7).
		g.logger.Warn("malformed downstream frame, forwarding as-is", zap.String("charger_id", id), zap.Error(err))
		g.forwardToUpstream(id, state, data)
		return
	}

	if frame.Type == ocppframe.CallResult && g.pending.Consume(frame.ID) {
		// A response to a gateway-originated request: consumed, never
		// forwarded (spec §4.1, §8 property 4).
		return
	}

	g.applyStateFromFrame(id, state, frame)

	if g.History != nil {
		g.History.Observe(id, frame)
	}

	g.forwardToUpstream(id, state, data)
}

func (g *Gateway) forwardToUpstream(id string, state *chargers.State, data []byte) {
	if err := g.sendToUpstream(id, data); err != nil {
		state.AppendBuffer(data)
		return
	}
	if g.Metrics != nil {
		g.Metrics.FrameForwarded("downstream_to_upstream", id)
	}
}

type statusNotificationPayload struct {
	ConnectorId int    `json:"connectorId"`
	Status      string `json:"status"`
	ErrorCode   string `json:"errorCode"`
}

type meterValuesPayload struct {
	ConnectorId   int  `json:"connectorId"`
	TransactionId *int `json:"transactionId,omitempty"`
	MeterValue    []struct {
		Timestamp    string `json:"timestamp"`
		SampledValue []struct {
			Value     string `json:"value"`
			Measurand string `json:"measurand,omitempty"`
			Unit      string `json:"unit,omitempty"`
		} `json:"sampledValue"`
	} `json:"meterValue"`
}

// applyStateFromFrame implements spec §4.2: opportunistic state updates from
// StatusNotification and MeterValues requests.
func (g *Gateway) applyStateFromFrame(id string, state *chargers.State, frame *ocppframe.Frame) {
	if frame.Type != ocppframe.Call {
		return
	}

	switch frame.Action {
	case "StatusNotification":
		var p statusNotificationPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			g.logger.Warn("malformed StatusNotification payload", zap.String("charger_id", id), zap.Error(err))
			return
		}
		needsRestore, learnedMax := state.ApplyStatusNotification(chargers.Status(p.Status))
		if needsRestore {
			go g.SendSetChargingProfile(id, learnedMax)
		}

	case "MeterValues":
		var p meterValuesPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			g.logger.Warn("malformed MeterValues payload", zap.String("charger_id", id), zap.Error(err))
			return
		}
		watts, ok := extractActiveImportWatts(p)
		if !ok {
			return
		}
		needsRestore, learned, learnedMax := state.ApplyMeterValues(watts)
		if needsRestore {
			go g.SendSetChargingProfile(id, learnedMax)
		}
		if learned {
			g.registry.PersistLearned()
		}
	}
}

// extractActiveImportWatts finds the first sampled value whose measurand is
// Power.Active.Import and normalizes it to watts (spec §4.2).
func extractActiveImportWatts(p meterValuesPayload) (float64, bool) {
	for _, mv := range p.MeterValue {
		for _, sample := range mv.SampledValue {
			if sample.Measurand != "Power.Active.Import" {
				continue
			}
			value, err := strconv.ParseFloat(sample.Value, 64)
			if err != nil {
				return 0, false
			}
			if sample.Unit == "kW" {
				value *= 1000
			}
			return value, true
		}
	}
	return 0, false
}
