package bridge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ocpp-gateway/internal/chargers"
	"ocpp-gateway/internal/ocppframe"
)

// ensureUpstreamTask starts the per-charger upstream task if none is
// running (spec §4.1: "if no upstream task exists, or the previous one has
// terminated, a new upstream task is started").
func (g *Gateway) ensureUpstreamTask(id string) {
	g.mu.Lock()
	if _, running := g.upstreamCancel[id]; running {
		g.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.upstreamCancel[id] = cancel
	g.mu.Unlock()

	go g.upstreamLoop(ctx, id)
}

// cancelUpstreamTask cancels and forgets the task for id, if any. Called on
// downstream disconnect: the upstream task is cancellation-scoped to the
// downstream connection's lifetime (spec §4.1).
func (g *Gateway) cancelUpstreamTask(id string) {
	g.mu.Lock()
	cancel, ok := g.upstreamCancel[id]
	delete(g.upstreamCancel, id)
	g.mu.Unlock()
	if ok {
		cancel()
	}
}

// upstreamLoop dials the CSMS, flushes the buffer, relays traffic, and
// retries with a fixed delay on transport error, until ctx is cancelled.
func (g *Gateway) upstreamLoop(ctx context.Context, id string) {
	state, ok := g.registry.Get(id)
	if !ok {
		return
	}

	// Closes whatever connection is live when the charger disconnects, so a
	// blocked ReadMessage unblocks and the loop can observe ctx.Done.
	go func() {
		<-ctx.Done()
		g.mu.RLock()
		peer, ok := g.upstream[id]
		g.mu.RUnlock()
		if ok {
			peer.conn.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := g.dialUpstream(ctx, id)
		if err != nil {
			g.logger.Warn("upstream dial failed, will retry", zap.String("charger_id", id), zap.Error(err))
			if !sleepOrDone(ctx, g.cfg.ReconnectDelay) {
				return
			}
			continue
		}

		peer := &upstreamPeer{conn: conn}
		g.mu.Lock()
		g.upstream[id] = peer
		g.mu.Unlock()

		g.flushBuffer(id, state, func(frame []byte) error {
			return g.sendToUpstream(id, frame)
		})

		g.readUpstreamLoop(id, state, peer)

		g.mu.Lock()
		delete(g.upstream, id)
		g.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if !sleepOrDone(ctx, g.cfg.ReconnectDelay) {
			return
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (g *Gateway) dialUpstream(ctx context.Context, id string) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, g.cfg.ConnectTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("User-Agent", g.cfg.UserAgent)

	url := fmt.Sprintf("%s/%s", g.cfg.CSMSBaseURL, id)
	conn, _, err := g.dialer.DialContext(dialCtx, url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (g *Gateway) readUpstreamLoop(id string, state *chargers.State, peer *upstreamPeer) {
	defer peer.conn.Close()
	for {
		_, data, err := peer.conn.ReadMessage()
		if err != nil {
			return
		}
		g.handleUpstreamFrame(id, state, data)
	}
}

func (g *Gateway) handleUpstreamFrame(id string, state *chargers.State, data []byte) {
	g.mirror(id, "upstream", data)

	if g.History != nil {
		if frame, err := ocppframe.Parse(data); err == nil {
			g.History.Observe(id, frame)
		}
	}

	if g.downstreamConnected(id) {
		if err := g.sendToDownstream(id, data); err != nil {
			g.bufferUpstreamOriginated(state, data)
			return
		}
		if g.Metrics != nil {
			g.Metrics.FrameForwarded("upstream_to_downstream", id)
		}
		return
	}

	g.bufferUpstreamOriginated(state, data)
}

// bufferUpstreamOriginated queues a CSMS-originated frame while downstream
// is offline, priority-inserting RemoteStopTransaction requests ahead of
// everything else already queued (spec §4.1).
func (g *Gateway) bufferUpstreamOriginated(state *chargers.State, data []byte) {
	frame, err := ocppframe.Parse(data)
	if err == nil && frame.Type == ocppframe.Call && frame.Action == "RemoteStopTransaction" {
		state.PrependBuffer(data)
		return
	}
	state.AppendBuffer(data)
}
