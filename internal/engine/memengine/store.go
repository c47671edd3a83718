// Package memengine is the default, dependency-free-of-cgo storage engine:
// an in-process, ordered key/value store used when the worker is not built
// with the dkvengine build tag (internal/engine/cengine). It is grounded
// on the teacher's sharded lib/db/engines/maple store, adapted from a
// hash-sharded, unordered map to a single ordered google/btree.BTree so
// RangeQuery's start/limit bounds are meaningful — the worker's dispatch
// loop is single-threaded (spec §5), so the sharding maple used purely for
// concurrent throughput buys nothing here; a single tree guarded by one
// mutex is the right shape for this access pattern.
package memengine

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/dkvbridge/dkvbridge/internal/engine"
	"github.com/dkvbridge/dkvbridge/internal/wire"
)

// DefaultBatchSize is the batch capacity ParseRangeOptions falls back to
// when the caller passes 0. It has the same value as internal/worker's
// DefaultReadBatchSize, which is what sizes the fixed ReadBatch segments.
const DefaultBatchSize = 64 << 10

// btreeDegree is the minimum degree passed to google/btree.New; 32 is a
// reasonable default for in-memory string-keyed trees, matching the range
// the teacher's own from-scratch BTree reference (firefly-research-flydb)
// documents (t = 4-16) scaled up for google/btree's wider nodes.
const btreeDegree = 32

type kvItem struct {
	key   []byte
	value []byte
}

func (a kvItem) Less(than btree.Item) bool {
	return bytes.Compare(a.key, than.(kvItem).key) < 0
}

// Store is the default engine.Engine implementation.
type Store struct {
	mu   sync.Mutex
	tree *btree.BTree
	path string
	opts engine.Options
}

// New constructs an unopened Store.
func New() *Store {
	return &Store{}
}

func (s *Store) Open(_ context.Context, path string, opts engine.Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		s.tree = btree.New(btreeDegree)
	}
	s.path = path
	s.opts = opts
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = nil
	return nil
}

func (s *Store) Count() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return 0, fmt.Errorf("memengine: not open")
	}
	return uint64(s.tree.Len()), nil
}

func (s *Store) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return fmt.Errorf("memengine: not open")
	}
	keyCopy := append([]byte(nil), key...)
	valCopy := append([]byte(nil), value...)
	s.tree.ReplaceOrInsert(kvItem{key: keyCopy, value: valCopy})
	return nil
}

func (s *Store) Get(key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return nil, false, fmt.Errorf("memengine: not open")
	}
	item := s.tree.Get(kvItem{key: key})
	if item == nil {
		return nil, false, nil
	}
	v := item.(kvItem).value
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Delete(key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return false, fmt.Errorf("memengine: not open")
	}
	removed := s.tree.Delete(kvItem{key: key})
	return removed != nil, nil
}

// forwardIterator is a resumable ascending cursor over the tree, per spec
// §4.3.2 "the worker creates an iterator on first ReadBatch and caches it
// so subsequent batches resume from where the last one left".
type forwardIterator struct {
	afterKey []byte
	hasAfter bool
	done     bool
}

func (s *Store) GetIter() (engine.Iterator, error) {
	return &forwardIterator{}, nil
}

func (s *Store) DelIter(engine.Iterator) error {
	return nil
}

func (s *Store) BatchRead(it engine.Iterator, buf []byte) (int, bool, error) {
	fi, ok := it.(*forwardIterator)
	if !ok {
		return 0, false, fmt.Errorf("memengine: wrong iterator type")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return 0, false, fmt.Errorf("memengine: not open")
	}
	if fi.done {
		return 0, false, nil
	}

	pos := 0
	pivot := kvItem{key: fi.afterKey}
	skipFirst := fi.hasAfter
	exhausted := true
	s.tree.AscendGreaterOrEqual(pivot, func(i btree.Item) bool {
		entry := i.(kvItem)
		if skipFirst {
			skipFirst = false
			if bytes.Equal(entry.key, fi.afterKey) {
				return true
			}
		}
		if pos+wireBatchEntrySize(entry) > len(buf) {
			exhausted = false
			return false
		}
		n, err := wire.EncodeBatchEntry(buf[pos:], wire.BatchEntry{Key: entry.key, Value: entry.value})
		if err != nil {
			exhausted = false
			return false
		}
		pos += n
		fi.afterKey = append([]byte(nil), entry.key...)
		fi.hasAfter = true
		return true
	})
	if exhausted {
		fi.done = true
	}
	return pos, !exhausted, nil
}

func wireBatchEntrySize(e kvItem) int {
	return wire.BatchEntry{Key: e.key, Value: e.value}.EncodedSize()
}

// rangeCursor is engine.RangeCursor's concrete type: an ascending cursor
// bounded by [start, limit], both ends inclusive.
type rangeCursor struct {
	afterKey []byte
	hasAfter bool
	limit    []byte
	hasLimit bool
	done     bool
}

// readOptions is engine.ReadOptions's concrete type.
type readOptions struct {
	batchCapacity uint64
	attrs         []int32
}

func (s *Store) ParseRangeOptions(start, limit []byte, batchCapacity uint64, attrs []int32) (engine.RangeCursor, engine.ReadOptions, error) {
	rc := &rangeCursor{}
	if len(start) > 0 {
		rc.afterKey = append([]byte(nil), start...)
		// AscendGreaterOrEqual is inclusive of start, so afterKey/hasAfter
		// semantics (exclusive after first) would wrongly skip `start`
		// itself. hasAfter starts false so the very first RangeRead call
		// includes `start`.
	}
	if len(limit) > 0 {
		rc.limit = append([]byte(nil), limit...)
		rc.hasLimit = true
	}
	cap := batchCapacity
	if cap == 0 {
		cap = DefaultBatchSize
	}
	ro := &readOptions{batchCapacity: cap, attrs: append([]int32(nil), attrs...)}
	return rc, ro, nil
}

func (s *Store) RangeRead(rcIface engine.RangeCursor, optsIface engine.ReadOptions, buf []byte) (int, bool, error) {
	rc, ok := rcIface.(*rangeCursor)
	if !ok {
		return 0, false, fmt.Errorf("memengine: wrong range cursor type")
	}
	ro, ok := optsIface.(*readOptions)
	if !ok {
		return 0, false, fmt.Errorf("memengine: wrong read options type")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return 0, false, fmt.Errorf("memengine: not open")
	}
	if rc.done {
		return 0, false, nil
	}

	cap := int(ro.batchCapacity)
	if cap > len(buf) {
		cap = len(buf)
	}

	pos := 0
	pivot := kvItem{key: rc.afterKey}
	skipFirst := rc.hasAfter
	exhausted := true
	s.tree.AscendGreaterOrEqual(pivot, func(i btree.Item) bool {
		entry := i.(kvItem)
		if skipFirst {
			skipFirst = false
			if bytes.Equal(entry.key, rc.afterKey) {
				return true
			}
		}
		if rc.hasLimit && bytes.Compare(entry.key, rc.limit) > 0 {
			return false
		}
		size := wireBatchEntrySize(entry)
		if pos+size > cap {
			exhausted = false
			return false
		}
		n, err := wire.EncodeBatchEntry(buf[pos:], wire.BatchEntry{Key: entry.key, Value: entry.value})
		if err != nil {
			exhausted = false
			return false
		}
		pos += n
		rc.afterKey = append([]byte(nil), entry.key...)
		rc.hasAfter = true
		return true
	})
	if exhausted {
		rc.done = true
	}
	return pos, !exhausted, nil
}

func (s *Store) ParseRangeResult(result []byte, buf []byte) (int, error) {
	// The default engine's RangeRead already produces final, ready-to-send
	// bytes directly into the bulk segment; no post-processing step is
	// needed, unlike collaborators that project columns after the scan.
	return copy(buf, result), nil
}

func (s *Store) ClearRangeMeta(engine.RangeCursor, engine.ReadOptions) error {
	return nil
}

var _ engine.Engine = (*Store)(nil)
