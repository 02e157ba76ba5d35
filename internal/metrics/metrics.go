// Package metrics exposes the service's Prometheus instrumentation:
// room/session gauges, diff and lag counters, and the writeback
// duration histogram.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	roomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sudoku_rooms_active",
		Help: "Current number of rooms held in memory.",
	})

	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sudoku_sessions_active",
		Help: "Current number of open WebSocket sessions.",
	})

	diffsAppliedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sudoku_diffs_applied_total",
		Help: "Total number of board diffs successfully applied.",
	})

	broadcastLagTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sudoku_broadcast_lag_total",
		Help: "Total number of times a session's diff subscription lagged and required a full resync.",
	})

	sessionsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sudoku_sessions_rejected_total",
		Help: "Total number of rejected connection attempts by reason.",
	}, []string{"reason"})

	writebackDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sudoku_writeback_duration_seconds",
		Help:    "Time spent writing the dirty-rooms set to the store per writeback pass.",
		Buckets: prometheus.DefBuckets,
	})

	writebackRoomsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sudoku_writeback_rooms_total",
		Help: "Total number of room writes attempted across all writeback passes.",
	})
)

func init() {
	prometheus.MustRegister(
		roomsActive,
		sessionsActive,
		diffsAppliedTotal,
		broadcastLagTotal,
		sessionsRejectedTotal,
		writebackDuration,
		writebackRoomsTotal,
	)
}

// SetRoomsActive records the current room count.
func SetRoomsActive(n int) { roomsActive.Set(float64(n)) }

// IncSessionsActive/DecSessionsActive track the open session count.
func IncSessionsActive() { sessionsActive.Inc() }
func DecSessionsActive() { sessionsActive.Dec() }

// IncDiffsApplied records n board diffs from one successful applyDiffs
// call.
func IncDiffsApplied(n int) { diffsAppliedTotal.Add(float64(n)) }

// IncBroadcastLag records one lag-recovery full resync.
func IncBroadcastLag() { broadcastLagTotal.Inc() }

// Rejection reasons recorded by IncSessionRejected.
const (
	RejectReasonRoomFull   = "room_full"
	RejectReasonResources  = "resource_guard"
	RejectReasonRateLimit  = "rate_limit"
	RejectReasonNotFound   = "room_not_found"
)

// IncSessionRejected records a rejected connection attempt.
func IncSessionRejected(reason string) {
	sessionsRejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveWriteback records one writeback pass's duration and the
// number of rooms it attempted to write.
func ObserveWriteback(seconds float64, rooms int) {
	writebackDuration.Observe(seconds)
	writebackRoomsTotal.Add(float64(rooms))
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
