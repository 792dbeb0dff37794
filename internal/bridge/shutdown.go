package bridge

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Shutdown implements spec §4.8 steps 2-3: for each currently connected
// charger, restore its cap to learned_max_power_w, and wait up to bound for
// all of them to complete. Step 1 (stop accepting new downstream
// connections) and step 4 (close servers) are the caller's responsibility,
// since they involve the HTTP listener the bridge doesn't own.
func (g *Gateway) Shutdown(ctx context.Context, bound time.Duration) {
	ids := g.ConnectedChargerIDs()
	if len(ids) == 0 {
		return
	}

	deadline, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	grp, _ := errgroup.WithContext(deadline)
	for _, id := range ids {
		id := id
		grp.Go(func() error {
			state, ok := g.registry.Get(id)
			if !ok {
				return nil
			}
			snap := state.Snapshot()
			g.SendSetChargingProfile(id, snap.LearnedMaxPowerW)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		grp.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-deadline.Done():
		g.logger.Warn("graceful shutdown timed out waiting for SetChargingProfile acknowledgements")
	}
}
