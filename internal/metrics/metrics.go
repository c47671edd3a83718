// Package metrics is the domain-stack metrics surface: request counts,
// latency, and contention counters exported via
// github.com/VictoriaMetrics/metrics, the metrics dependency the teacher's
// go.mod already carries (as an indirect pull from dragonboat) but never
// imports directly. This package gives it a real, directly-imported home:
// internal/worker calls into it on every request, and internal/ipc on
// every slot-lease sweep that finds all slots busy.
package metrics

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"

	"github.com/dkvbridge/dkvbridge/internal/wire"
)

// RequestReceived increments the per-op request counter.
func RequestReceived(op wire.Op) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dkvbridge_requests_total{op=%q}`, op.String())).Inc()
}

// ResponseSent increments the per-op response counter, tagged by status.
func ResponseSent(op wire.Op, status wire.Status) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dkvbridge_responses_total{op=%q,status=%q}`, op.String(), status.String())).Inc()
}

// DispatchLatency records how long the worker spent handling one request,
// in seconds, matching VictoriaMetrics/metrics histogram conventions.
func DispatchLatency(op wire.Op, seconds float64) {
	metrics.GetOrCreateHistogram(fmt.Sprintf(`dkvbridge_dispatch_seconds{op=%q}`, op.String())).Update(seconds)
}

// SlotLeaseWait increments the counter of times a client had to block
// waiting for a response slot to free up (spec §4.2.1/§9 fairness caveat).
func SlotLeaseWait(workerID uint32) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dkvbridge_slot_lease_waits_total{worker_id="%d"}`, workerID)).Inc()
}

// ActiveCursors sets the current cursor-map size for a worker as a gauge.
func ActiveCursors(workerID uint32, n int) {
	metrics.GetOrCreateFloatCounter(fmt.Sprintf(`dkvbridge_active_cursors{worker_id="%d"}`, workerID)).Set(float64(n))
}

// ActiveRangeSessions sets the current range-session-map size for a worker.
func ActiveRangeSessions(workerID uint32, n int) {
	metrics.GetOrCreateFloatCounter(fmt.Sprintf(`dkvbridge_active_range_sessions{worker_id="%d"}`, workerID)).Set(float64(n))
}

// BulkSegmentCreated increments the count of bulk side-channel segments a
// worker has created, per spec §4.4.
func BulkSegmentCreated(workerID uint32) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dkvbridge_bulk_segments_created_total{worker_id="%d"}`, workerID)).Inc()
}

// WritePrometheus writes every registered metric in Prometheus exposition
// format, for cmd/worker's admin HTTP endpoint.
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, true)
}
