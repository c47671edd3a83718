// Package bulk implements the bulk side-channel: per-batch named shared
// memory segments used to return scan results too large for a response
// slot, per spec §4.4/§6.
package bulk

import (
	"fmt"

	"github.com/dkvbridge/dkvbridge/internal/shm"
)

// ReadBatchName returns the deterministic segment name for a forward-scan
// (ReadBatch) batch, per spec §6: "/KVReadBatch<client_pid><worker_id><cursor_id>".
func ReadBatchName(clientPID, workerID uint32, cursorID uint64) string {
	return fmt.Sprintf("/KVReadBatch%d%d%d", clientPID, workerID, cursorID)
}

// RangeQueryName returns the deterministic segment name for a range-query
// batch, per spec §6: "/KVRangeQuery<client_pid><worker_id><cursor_id>".
func RangeQueryName(clientPID, workerID uint32, cursorID uint64) string {
	return fmt.Sprintf("/KVRangeQuery%d%d%d", clientPID, workerID, cursorID)
}

// WriterSide is the worker's half of a bulk segment's lifecycle (spec
// §4.4): unlink any stale segment by the name, create, truncate to the
// target size, write, unmap. One WriterSide is used per batch; a fresh one
// is opened for the next batch under the same name.
type WriterSide struct {
	seg  *shm.Segment
	name string
}

// CreateWriter unlinks any stale segment with this name and creates a
// fresh one truncated to size, per spec §4.4 steps 1-3.
func CreateWriter(name string, size int) (*WriterSide, error) {
	if err := shm.Unlink(name); err != nil {
		return nil, err
	}
	seg, err := shm.Create(name, size)
	if err != nil {
		return nil, err
	}
	return &WriterSide{seg: seg, name: name}, nil
}

// Bytes returns the mapped region for the caller (the engine collaborator)
// to serialize a batch into directly.
func (w *WriterSide) Bytes() []byte { return w.seg.Bytes() }

// Name returns the segment's shared-memory name.
func (w *WriterSide) Name() string { return w.name }

// Close unmaps and closes the segment, per spec §4.4 step 4 ("writes the
// serialized batch, unmaps"). It does not unlink; unlinking is the
// client's responsibility on cursor close (spec §4.4 client step 4).
func (w *WriterSide) Close() error { return w.seg.Close() }

// ReaderSide is the client's half of a bulk segment's lifecycle: open and
// map by name, read, unmap; unlink only happens on cursor close.
type ReaderSide struct {
	seg  *shm.Segment
	name string
}

// OpenReader maps an existing bulk segment by name, per spec §4.4 client
// step 2 ("opens and maps the segment by the same name").
func OpenReader(name string, size int) (*ReaderSide, error) {
	seg, err := shm.Open(name, size)
	if err != nil {
		return nil, err
	}
	return &ReaderSide{seg: seg, name: name}, nil
}

// Bytes returns the mapped region for the client to decode.
func (r *ReaderSide) Bytes() []byte { return r.seg.Bytes() }

// Name returns the segment's shared-memory name.
func (r *ReaderSide) Name() string { return r.name }

// Close unmaps the segment without unlinking it, per spec §4.4 client step
// 4 ("unmaps the current segment" on the next ReadBatch).
func (r *ReaderSide) Close() error { return r.seg.Close() }

// Unlink removes the named segment, per spec §4.4 client step 4 ("on
// CloseCursor, also unlinks").
func Unlink(name string) error { return shm.Unlink(name) }
