package transport

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
)

// ResourceGuard is a static admission gate on the upgrade path: reject
// new connections once host CPU usage crosses a configured
// percentage, and cap the number of concurrently open sessions.
// Generalized from the teacher's container-aware ResourceGuard down to
// host CPU sampling, since this service has no container deployment
// target to detect.
type ResourceGuard struct {
	cpuRejectThreshold float64
	maxConnections     int

	logger zerolog.Logger

	currentCPU  atomic.Value // float64
	currentConn int64        // atomic
}

// NewResourceGuard returns a guard that rejects admission once host
// CPU exceeds cpuRejectThreshold percent, or once maxConnections
// sessions are open. Call StartMonitoring to keep the CPU reading
// current.
func NewResourceGuard(cpuRejectThreshold float64, maxConnections int, logger zerolog.Logger) *ResourceGuard {
	rg := &ResourceGuard{
		cpuRejectThreshold: cpuRejectThreshold,
		maxConnections:     maxConnections,
		logger:             logger,
	}
	rg.currentCPU.Store(0.0)
	return rg
}

// ShouldAcceptConnection reports whether a new upgrade should proceed,
// and if not, a human-readable reason for the rejection.
func (rg *ResourceGuard) ShouldAcceptConnection() (accept bool, reason string) {
	if rg.maxConnections > 0 {
		if current := atomic.LoadInt64(&rg.currentConn); current >= int64(rg.maxConnections) {
			return false, "at max connections"
		}
	}
	if rg.cpuRejectThreshold > 0 {
		if cpuPct := rg.currentCPU.Load().(float64); cpuPct > rg.cpuRejectThreshold {
			return false, "CPU overloaded"
		}
	}
	return true, ""
}

// ConnectionOpened/ConnectionClosed track the live connection count
// used by the connection-limit check.
func (rg *ResourceGuard) ConnectionOpened() { atomic.AddInt64(&rg.currentConn, 1) }
func (rg *ResourceGuard) ConnectionClosed() { atomic.AddInt64(&rg.currentConn, -1) }

// sampleCPU updates the guard's view of current host CPU usage.
func (rg *ResourceGuard) sampleCPU() {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return
	}
	rg.currentCPU.Store(percents[0])
}

// StartMonitoring samples host CPU on interval until ctx is canceled.
func (rg *ResourceGuard) StartMonitoring(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rg.sampleCPU()
			case <-ctx.Done():
				rg.logger.Debug().Msg("resource guard monitoring stopped")
				return
			}
		}
	}()
}
