// Package bridge implements the bidirectional OCPP bridge: a downstream
// WebSocket server accepting charger connections and an upstream WebSocket
// client dialing the CSMS, joined per charger_id with store-and-forward
// buffering. Grounded on the teacher's internal/ocpp/server.go for the
// accept/upgrade/read-loop shape, generalized to a symmetric client side per
// spec §4.1, and on JoseRFJuniorLLMs-EV-IA's hub.go for the per-connection
// write-mutex pattern.
package bridge

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ocpp-gateway/internal/chargers"
	"ocpp-gateway/internal/history"
	"ocpp-gateway/internal/metrics"
	"ocpp-gateway/internal/pending"
	"ocpp-gateway/internal/sitepower"
	"ocpp-gateway/internal/telemetry"
)

// gatewayChargingProfileID is the fixed chargingProfileId every
// SetChargingProfile frame uses (spec §4.3: "a fixed chargingProfileId").
const gatewayChargingProfileID = 9901

// Config is the subset of the application configuration the bridge needs.
type Config struct {
	CSMSBaseURL    string
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	UserAgent      string
}

func DefaultConfig(csmsBaseURL string) Config {
	return Config{
		CSMSBaseURL:    csmsBaseURL,
		ConnectTimeout: 10 * time.Second,
		ReconnectDelay: 10 * time.Second,
		// Kept verbatim for CSMS compatibility (spec §6).
		UserAgent: "Gateway-TCharge-Python",
	}
}

type downstreamPeer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

type upstreamPeer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Gateway owns every live downstream/upstream connection and the per-charger
// upstream task lifecycle. History, Telemetry and Metrics are optional
// best-effort observers; a nil field simply means that observer is disabled.
type Gateway struct {
	cfg      Config
	registry *chargers.Registry
	site     *sitepower.SitePower
	pending  *pending.Set
	logger   *zap.Logger

	History   *history.Recorder
	Telemetry *telemetry.Relay
	Metrics   *metrics.Collector

	upgrader websocket.Upgrader
	dialer   websocket.Dialer

	mu             sync.RWMutex
	downstream     map[string]*downstreamPeer
	upstream       map[string]*upstreamPeer
	upstreamCancel map[string]context.CancelFunc
}

func New(cfg Config, registry *chargers.Registry, site *sitepower.SitePower, pendingSet *pending.Set, logger *zap.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		registry: registry,
		site:     site,
		pending:  pendingSet,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:  func(r *http.Request) bool { return true },
			Subprotocols: []string{"ocpp1.6"},
		},
		dialer: websocket.Dialer{
			Subprotocols:    []string{"ocpp1.6"},
			HandshakeTimeout: cfg.ConnectTimeout,
			// Server verification disabled per spec §6/§9(c); operators who
			// re-enable it should also stop setting InsecureSkipVerify.
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		downstream:     make(map[string]*downstreamPeer),
		upstream:       make(map[string]*upstreamPeer),
		upstreamCancel: make(map[string]context.CancelFunc),
	}
}

// chargerIDFromPath implements spec §6: "the charger ID is the path with
// leading slash stripped".
func chargerIDFromPath(path string) string {
	return strings.TrimPrefix(path, "/")
}

// ConnectedChargerIDs returns the charger_ids with a live downstream
// connection right now, used by the graceful-shutdown path.
func (g *Gateway) ConnectedChargerIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.downstream))
	for id := range g.downstream {
		out = append(out, id)
	}
	return out
}

func (g *Gateway) sendToDownstream(id string, frame []byte) error {
	g.mu.RLock()
	peer, ok := g.downstream[id]
	g.mu.RUnlock()
	if !ok {
		return errNotConnected
	}
	peer.writeMu.Lock()
	defer peer.writeMu.Unlock()
	return peer.conn.WriteMessage(websocket.TextMessage, frame)
}

func (g *Gateway) sendToUpstream(id string, frame []byte) error {
	g.mu.RLock()
	peer, ok := g.upstream[id]
	g.mu.RUnlock()
	if !ok {
		return errNotConnected
	}
	peer.writeMu.Lock()
	defer peer.writeMu.Unlock()
	return peer.conn.WriteMessage(websocket.TextMessage, frame)
}

func (g *Gateway) downstreamConnected(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.downstream[id]
	return ok
}

// flushBuffer drains a charger's buffer and sends every frame in order via
// send. A send failure aborts the flush; the remaining frames are logged as
// lost (spec §4.1 "Buffer flush").
func (g *Gateway) flushBuffer(id string, state *chargers.State, send func([]byte) error) {
	frames := state.DrainBuffer()
	for i, frame := range frames {
		if err := send(frame); err != nil {
			g.logger.Warn("buffer flush aborted, remaining frames lost",
				zap.String("charger_id", id),
				zap.Int("sent", i),
				zap.Int("remaining", len(frames)-i),
				zap.Error(err))
			return
		}
	}
}

func (g *Gateway) mirror(id, direction string, frame []byte) {
	if g.Telemetry != nil {
		g.Telemetry.Mirror(id, direction, frame)
	}
}

type notConnectedError struct{}

func (notConnectedError) Error() string { return "bridge: peer not connected" }

var errNotConnected = notConnectedError{}
