package worker

import (
	"github.com/dkvbridge/dkvbridge/internal/bulk"
	"github.com/dkvbridge/dkvbridge/internal/metrics"
	"github.com/dkvbridge/dkvbridge/internal/wire"
)

// handleRangeQuery implements spec §4.3/§6 RangeQuery: the range payload
// (start/limit/batch_capacity/attrs) is present only on the first call for
// a CursorKey, decided here by whether a rangeSession already exists —
// never by a wire flag, per spec §6's "range payload present only on
// first call for a cursor".
func (s *State) handleRangeQuery(msg Message) (wire.Status, wire.Entity, error) {
	prefix, err := wire.DecodeCursorKey(msg.Body)
	if err != nil {
		return wire.StatusException, nil, err
	}
	rs, exists := s.ranges[prefix]
	args, err := wire.DecodeRangeQueryArgs(msg.Body, !exists)
	if err != nil {
		return wire.StatusException, nil, err
	}

	if !exists {
		cursor, opts, err := s.eng.ParseRangeOptions(args.Start, args.Limit, args.BatchCapacity, args.Attrs)
		if err != nil {
			return wire.StatusException, nil, err
		}
		capacity := args.BatchCapacity
		if capacity == 0 {
			capacity = DefaultReadBatchSize
		}
		rs = &rangeSession{cursor: cursor, opts: opts, batchCapacity: capacity}
		s.ranges[prefix] = rs
	}

	scratch := make([]byte, rs.batchCapacity)
	// spec §4.3: drive range_read until either no more data or a non-empty
	// batch is produced, matching the original's
	// `do { state.next = RangeQueryRead(...); } while (state.next && state.size == 0);`
	// A single call can legitimately come back (n=0, hasMore=true) — a
	// batch capacity too small for the first matching entry, or an engine
	// that internally skips filtered entries — and that must never be
	// forwarded to the client as a spurious empty-but-not-done batch.
	var n int
	var hasMore bool
	for {
		n, hasMore, err = s.eng.RangeRead(rs.cursor, rs.opts, scratch)
		if err != nil {
			return wire.StatusException, nil, err
		}
		if !hasMore || n > 0 {
			break
		}
	}

	out := make([]byte, n)
	outN, err := s.eng.ParseRangeResult(scratch[:n], out)
	if err != nil {
		return wire.StatusException, nil, err
	}

	// spec §4.3/kv_worker.cc: only create the bulk segment when there is
	// something to publish; mmap rejects a zero-length mapping outright.
	if outN > 0 {
		name := bulk.RangeQueryName(prefix.ClientPID, s.WorkerID, prefix.CursorID)
		w, err := bulk.CreateWriter(name, outN)
		if err != nil {
			return wire.StatusException, nil, err
		}
		copy(w.Bytes(), out[:outN])
		if err := w.Close(); err != nil {
			return wire.StatusException, nil, err
		}
		metrics.BulkSegmentCreated(s.WorkerID)
	}

	if !hasMore {
		if err := s.eng.ClearRangeMeta(rs.cursor, rs.opts); err != nil {
			s.log.WithFields("cursor", prefix).Warningf("handleRangeQuery: ClearRangeMeta on exhaustion: %v", err)
		}
		delete(s.ranges, prefix)
	}

	return wire.StatusSuccess, wire.ReadBatchResult{Next: hasMore, NBytes: uint64(outN)}, nil
}

// handleClearRangeQuery implements spec §4.3 ClearRangeQuery: release a
// range session early (before exhaustion) and unlink its bulk segment.
// Fire-and-forget, per wire.Op.HasResponse.
func (s *State) handleClearRangeQuery(msg Message) (wire.Status, wire.Entity, error) {
	key, err := wire.DecodeCursorKey(msg.Body)
	if err != nil {
		return wire.StatusException, nil, err
	}
	if rs, ok := s.ranges[key]; ok {
		if err := s.eng.ClearRangeMeta(rs.cursor, rs.opts); err != nil {
			s.log.WithFields("cursor", key).Warningf("handleClearRangeQuery: ClearRangeMeta: %v", err)
		}
		delete(s.ranges, key)
	}
	if err := bulk.Unlink(bulk.RangeQueryName(key.ClientPID, s.WorkerID, key.CursorID)); err != nil {
		s.log.WithFields("cursor", key).Warningf("handleClearRangeQuery: unlink bulk segment: %v", err)
	}
	return wire.StatusSuccess, nil, nil
}
