// Package sitepower holds the single process-wide site power reading fed by
// the meter HTTP ingest and read by the demand-control loop.
package sitepower

import (
	"sync"
	"time"
)

// SitePower is the facility meter's most recent active-power reading.
type SitePower struct {
	mu          sync.RWMutex
	currentW    float64
	lastUpdated time.Time
}

// Update records a new meter reading.
func (p *SitePower) Update(watts float64, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentW = watts
	p.lastUpdated = at
}

// Snapshot is a point-in-time read, safe to use without holding the lock.
type Snapshot struct {
	CurrentW    float64
	LastUpdated time.Time
}

func (p *SitePower) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{CurrentW: p.currentW, LastUpdated: p.lastUpdated}
}
