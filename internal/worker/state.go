// Package worker implements the per-worker dispatch loop and connection
// state, per spec §3/§4.3: one process per (database, worker-id), owning
// one engine handle, a reference count, a cursor map, and a range-session
// map, all touched only from the single dispatch goroutine (spec §5:
// "Worker-local maps ... are touched only from the worker's dispatch
// thread; no locking required"). This invariant is documented here, not
// enforced with a mutex, the same way the teacher documents single-writer
// invariants on transport/server fields rather than guarding them.
package worker

import (
	"context"

	"github.com/dkvbridge/dkvbridge/internal/engine"
	"github.com/dkvbridge/dkvbridge/internal/ipc"
	"github.com/dkvbridge/dkvbridge/internal/logging"
	"github.com/dkvbridge/dkvbridge/internal/wire"
)

// rangeSession is one active RangeQuery's worker-side state, analogous to
// a cursor but bounded (spec §3 "range_sessions: CursorKey → (range_handle,
// read_options)").
type rangeSession struct {
	cursor        engine.RangeCursor
	opts          engine.ReadOptions
	batchCapacity uint64
}

// State is a single worker's dispatch-loop-owned state. Not safe for
// concurrent use — see the package doc comment.
type State struct {
	WorkerID uint32
	DBId     uint32

	ch  *ipc.Channel
	eng engine.Engine
	log *logging.Logger

	engineOpen bool
	refCount   int

	// readBatchSize is the fixed segment size ReadBatch's bulk segment is
	// always created at, per spec §3/§6 "READBATCHSIZE" — unlike
	// RangeQuery's exact-fit segments, this size never shrinks to the
	// bytes actually written this round. Defaults to
	// DefaultReadBatchSize; see SetReadBatchSize.
	readBatchSize int

	cursors map[wire.CursorKey]engine.Iterator
	ranges  map[wire.CursorKey]*rangeSession
}

// DefaultReadBatchSize is READBATCHSIZE's default, per spec §6. Kept in
// sync with internal/engine/memengine's DefaultBatchSize; a mismatch only
// affects how many entries fit per round trip, never correctness.
const DefaultReadBatchSize = 64 << 10

// New constructs an unstarted worker state. Call Run to enter the
// dispatch loop.
func New(workerID, dbID uint32, ch *ipc.Channel, eng engine.Engine) *State {
	return &State{
		WorkerID:      workerID,
		DBId:          dbID,
		ch:            ch,
		eng:           eng,
		log:           logging.Get("worker").WithFields("worker_id", workerID, "db_id", dbID),
		readBatchSize: DefaultReadBatchSize,
		cursors:       make(map[wire.CursorKey]engine.Iterator),
		ranges:        make(map[wire.CursorKey]*rangeSession),
	}
}

// SetReadBatchSize overrides READBATCHSIZE (spec §6's read_batch_size
// config knob). A non-positive value is ignored, leaving the default.
func (s *State) SetReadBatchSize(n int) {
	if n > 0 {
		s.readBatchSize = n
	}
}

// RefCount returns the current Open/Close reference count (spec §4.3.1).
func (s *State) RefCount() int { return s.refCount }

// EngineOpen reports whether the engine handle is currently open.
func (s *State) EngineOpen() bool { return s.engineOpen }

// CursorCount returns the number of active cursors, for internal/metrics.
func (s *State) CursorCount() int { return len(s.cursors) }

// RangeSessionCount returns the number of active range sessions, for
// internal/metrics.
func (s *State) RangeSessionCount() int { return len(s.ranges) }

// BootstrapOpen opens the engine handle from the worker's Launch-supplied
// configuration before entering the dispatch loop, per spec §4.5's Launch
// carrying path/options through to channel_name readiness. Client Open
// requests after this only adjust the reference count.
func (s *State) BootstrapOpen(ctx context.Context, path string, opts engine.Options) error {
	if err := s.eng.Open(ctx, path, opts); err != nil {
		return err
	}
	s.engineOpen = true
	return nil
}

// shutdown closes the engine handle (if open) and drops every cursor and
// range session, per spec §3 "Lifecycle: leaked cursors are reclaimed on
// worker shutdown" and §4.3 "Terminate ... close engine, destroy
// cursors/ranges/channel, exit process". Channel teardown is the caller's
// responsibility (the manager owns Destroy; see internal/ipc.Channel).
func (s *State) shutdown() {
	for key, it := range s.cursors {
		if err := s.eng.DelIter(it); err != nil {
			s.log.WithFields("cursor", key).Warningf("shutdown: DelIter: %v", err)
		}
	}
	s.cursors = nil
	for key, rs := range s.ranges {
		if err := s.eng.ClearRangeMeta(rs.cursor, rs.opts); err != nil {
			s.log.WithFields("cursor", key).Warningf("shutdown: ClearRangeMeta: %v", err)
		}
	}
	s.ranges = nil
	if s.engineOpen {
		if err := s.eng.Close(); err != nil {
			s.log.Warningf("shutdown: engine Close: %v", err)
		}
		s.engineOpen = false
	}
}
