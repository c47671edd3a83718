// Package engine defines the storage-engine collaborator interface the
// worker dispatches into, per spec §6 ("Engine collaborator"). The core
// IPC/dispatch machinery never assumes a concrete implementation; it holds
// only an Engine, an Iterator, and a RangeCursor.
package engine

import "context"

// Options carries the parsed form of an Open request's entity, per spec
// §6 "Open" entity layout and "Configuration (recognized options)".
type Options struct {
	// Opts is the opaque engine configuration blob passed through
	// unchanged from the client (spec §6 "engine_opts: opaque engine
	// configuration struct (passed through unchanged)").
	Opts []byte
	// ColumnStore selects column-store layout; only meaningful together
	// with AttrCount.
	ColumnStore bool
	AttrCount   int32
}

// Engine is the storage-engine collaborator the worker calls into, per
// spec §6. A worker holds exactly one Engine per (database, worker-id),
// per spec §3 "Worker state".
type Engine interface {
	Open(ctx context.Context, path string, opts Options) error
	Close() error
	Count() (uint64, error)
	Put(key, value []byte) error
	Get(key []byte) (value []byte, ok bool, err error)
	Delete(key []byte) (existed bool, err error)

	// GetIter returns a forward-scan iterator over the engine's key space
	// in engine-defined order, per spec §4.3.2/§8 "Cursor resumption". The
	// iterator is worker-side state; it never crosses a process boundary
	// (spec §9 "Cross-process shared handles").
	GetIter() (Iterator, error)
	// DelIter releases an iterator's resources. Called on CloseCursor and
	// on worker shutdown for any iterator the worker forgot to close
	// (spec §4.3 "CloseCursor" / §3 "Lifecycle: Cursor").
	DelIter(it Iterator) error

	// BatchRead advances it and serializes as many entries as fit into
	// buf, returning has_more, per spec §6 "batch_read". buf is the mapped
	// bulk segment's byte slice (internal/bulk); BatchRead reports the
	// number of bytes it wrote via n.
	BatchRead(it Iterator, buf []byte) (n int, hasMore bool, err error)

	// ParseRangeOptions decodes a RangeQuery request's range payload into
	// a RangeCursor and ReadOptions, per spec §6 "parse_range_options".
	ParseRangeOptions(start, limit []byte, batchCapacity uint64, attrs []int32) (RangeCursor, ReadOptions, error)
	// RangeRead advances rc under opts, filling buf with the serialized
	// batch and reporting the exact number of bytes written, per spec §6
	// "range_read". Unlike BatchRead (fixed READBATCHSIZE), the caller
	// sizes the bulk segment to exactly n bytes (spec §4.3 "RangeQuery").
	RangeRead(rc RangeCursor, opts ReadOptions, buf []byte) (n int, hasMore bool, err error)
	// ParseRangeResult is a hook for collaborators that need to
	// post-process a produced batch (e.g. column projection) before it is
	// considered final; the default engine's RangeRead already produces
	// final bytes, so this is a no-op there (spec §6 "parse_range_result").
	ParseRangeResult(result []byte, buf []byte) (int, error)
	// ClearRangeMeta releases a RangeCursor/ReadOptions pair, per spec §6
	// "clear_range_meta" / §4.3 "ClearRangeQuery".
	ClearRangeMeta(rc RangeCursor, opts ReadOptions) error
}

// Iterator is an opaque forward-scan cursor handle. Concrete engines
// define their own type; internal/worker never inspects it.
type Iterator interface{}

// RangeCursor is an opaque range-scan cursor handle, analogous to
// Iterator but carrying the inclusive [start, limit] bounds (spec §3
// "range_handle").
type RangeCursor interface{}

// ReadOptions is an opaque read-options handle produced by
// ParseRangeOptions and threaded back through RangeRead/ClearRangeMeta,
// mirroring spec §6's "read_opts" out-parameter.
type ReadOptions interface{}
