package worker

import (
	"github.com/dkvbridge/dkvbridge/internal/bulk"
	"github.com/dkvbridge/dkvbridge/internal/metrics"
	"github.com/dkvbridge/dkvbridge/internal/wire"
)

// handleReadBatch implements spec §4.3 ReadBatch: open the cursor lazily
// on first call for a CursorKey, render one batch into a scratch buffer,
// publish it via a freshly created bulk segment, and report has_more
// inline (spec §6 "next(bool) || size(u64)").
func (s *State) handleReadBatch(msg Message) (wire.Status, wire.Entity, error) {
	key, err := wire.DecodeCursorKey(msg.Body)
	if err != nil {
		return wire.StatusException, nil, err
	}

	it, ok := s.cursors[key]
	if !ok {
		it, err = s.eng.GetIter()
		if err != nil {
			return wire.StatusException, nil, err
		}
		s.cursors[key] = it
	}

	buf := make([]byte, s.readBatchSize)
	n, hasMore, err := s.eng.BatchRead(it, buf)
	if err != nil {
		return wire.StatusException, nil, err
	}

	// spec §3/§6: unlike RangeQuery, ReadBatch's segment is always the
	// fixed READBATCHSIZE, never sized down to the bytes actually written
	// this round (only skipped entirely below when there is nothing to
	// publish, since mmap rejects a zero-length mapping outright).
	if n > 0 {
		name := bulk.ReadBatchName(key.ClientPID, s.WorkerID, key.CursorID)
		w, err := bulk.CreateWriter(name, s.readBatchSize)
		if err != nil {
			return wire.StatusException, nil, err
		}
		copy(w.Bytes(), buf[:n])
		if err := w.Close(); err != nil {
			return wire.StatusException, nil, err
		}
		metrics.BulkSegmentCreated(s.WorkerID)
	}

	if !hasMore {
		if derr := s.eng.DelIter(it); derr != nil {
			s.log.WithFields("cursor", key).Warningf("handleReadBatch: DelIter on exhaustion: %v", derr)
		}
		delete(s.cursors, key)
	}

	return wire.StatusSuccess, wire.ReadBatchResult{Next: hasMore, NBytes: uint64(n)}, nil
}

// handleDelCursor implements spec §4.3 CloseCursor: release the iterator
// (if the client closes before exhaustion) and unlink the bulk segment, per
// spec §4.4 client step 4.
func (s *State) handleDelCursor(msg Message) (wire.Status, wire.Entity, error) {
	key, err := wire.DecodeCursorKey(msg.Body)
	if err != nil {
		return wire.StatusException, nil, err
	}
	if it, ok := s.cursors[key]; ok {
		if err := s.eng.DelIter(it); err != nil {
			return wire.StatusException, nil, err
		}
		delete(s.cursors, key)
	}
	if err := bulk.Unlink(bulk.ReadBatchName(key.ClientPID, s.WorkerID, key.CursorID)); err != nil {
		s.log.WithFields("cursor", key).Warningf("handleDelCursor: unlink bulk segment: %v", err)
	}
	return wire.StatusSuccess, nil, nil
}
