// Package enginetest is a factory-driven conformance suite any
// engine.Engine implementation can run itself through, grounded on the
// teacher's lib/db/testing.RunKVDBTests: a single exported entry point
// that takes a name and a constructor and runs the same table of
// subtests against whatever implementation the caller supplies. Adapted
// from the teacher's multi-KVDB-implementation suite (maple, and
// whatever else implemented db.KVDB) to Engine's smaller surface — no
// TTL/feature-flag concepts here since Engine has none.
package enginetest

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/dkvbridge/dkvbridge/internal/engine"
	"github.com/dkvbridge/dkvbridge/internal/wire"
)

// Factory constructs a fresh, unopened Engine implementation.
type Factory func() engine.Engine

// Run exercises factory()'s Engine implementation against the full
// conformance table, each subtest opening its own instance so failures
// don't cascade.
func Run(t *testing.T, name string, factory Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("PutGet", func(t *testing.T) { testPutGet(t, factory()) })
		t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, factory()) })
		t.Run("Delete", func(t *testing.T) { testDelete(t, factory()) })
		t.Run("Count", func(t *testing.T) { testCount(t, factory()) })
		t.Run("MissingKey", func(t *testing.T) { testMissingKey(t, factory()) })
		t.Run("BatchReadExhaustive", func(t *testing.T) { testBatchReadExhaustive(t, factory()) })
		t.Run("BatchReadResumes", func(t *testing.T) { testBatchReadResumes(t, factory()) })
		t.Run("RangeReadBounds", func(t *testing.T) { testRangeReadBounds(t, factory()) })
		t.Run("EmptyKeyAndValue", func(t *testing.T) { testEmptyKeyAndValue(t, factory()) })
	})
}

func mustOpen(t *testing.T, e engine.Engine) engine.Engine {
	t.Helper()
	if err := e.Open(context.Background(), t.TempDir(), engine.Options{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func testPutGet(t *testing.T, e engine.Engine) {
	e = mustOpen(t, e)
	if err := e.Put([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok, err := e.Get([]byte("k1"))
	if err != nil || !ok {
		t.Fatalf("get: v=%s ok=%v err=%v", v, ok, err)
	}
	if !bytes.Equal(v, []byte("v1")) {
		t.Fatalf("get value = %q, want v1", v)
	}
}

func testOverwrite(t *testing.T, e engine.Engine) {
	e = mustOpen(t, e)
	_ = e.Put([]byte("k"), []byte("v1"))
	_ = e.Put([]byte("k"), []byte("v2"))
	v, ok, err := e.Get([]byte("k"))
	if err != nil || !ok || !bytes.Equal(v, []byte("v2")) {
		t.Fatalf("get after overwrite = %q, ok=%v, err=%v, want v2", v, ok, err)
	}
	n, err := e.Count()
	if err != nil || n != 1 {
		t.Fatalf("count after overwrite = %d, err=%v, want 1", n, err)
	}
}

func testDelete(t *testing.T, e engine.Engine) {
	e = mustOpen(t, e)
	_ = e.Put([]byte("k"), []byte("v"))
	existed, err := e.Delete([]byte("k"))
	if err != nil || !existed {
		t.Fatalf("delete existing = existed=%v err=%v, want true", existed, err)
	}
	existed, err = e.Delete([]byte("k"))
	if err != nil || existed {
		t.Fatalf("delete missing = existed=%v err=%v, want false", existed, err)
	}
	_, ok, _ := e.Get([]byte("k"))
	if ok {
		t.Fatalf("key still readable after delete")
	}
}

func testCount(t *testing.T, e engine.Engine) {
	e = mustOpen(t, e)
	for i := 0; i < 20; i++ {
		_ = e.Put([]byte(fmt.Sprintf("k%02d", i)), []byte("v"))
	}
	n, err := e.Count()
	if err != nil || n != 20 {
		t.Fatalf("count = %d, err=%v, want 20", n, err)
	}
	_, _ = e.Delete([]byte("k00"))
	n, err = e.Count()
	if err != nil || n != 19 {
		t.Fatalf("count after delete = %d, err=%v, want 19", n, err)
	}
}

func testMissingKey(t *testing.T, e engine.Engine) {
	e = mustOpen(t, e)
	v, ok, err := e.Get([]byte("nope"))
	if err != nil || ok || v != nil {
		t.Fatalf("get missing = v=%v ok=%v err=%v, want nil/false/nil", v, ok, err)
	}
}

func testBatchReadExhaustive(t *testing.T, e engine.Engine) {
	e = mustOpen(t, e)
	const n = 50
	for i := 0; i < n; i++ {
		_ = e.Put([]byte(fmt.Sprintf("k%03d", i)), []byte(fmt.Sprintf("v%03d", i)))
	}
	it, err := e.GetIter()
	if err != nil {
		t.Fatalf("getiter: %v", err)
	}
	defer e.DelIter(it)

	seen := 0
	buf := make([]byte, 4096)
	for {
		nbytes, more, err := e.BatchRead(it, buf)
		if err != nil {
			t.Fatalf("batchread: %v", err)
		}
		entries, err := wire.DecodeBatch(buf, nbytes)
		if err != nil {
			t.Fatalf("decode batch: %v", err)
		}
		seen += len(entries)
		if !more {
			break
		}
	}
	if seen != n {
		t.Fatalf("batch read saw %d entries, want %d", seen, n)
	}
}

func testBatchReadResumes(t *testing.T, e engine.Engine) {
	e = mustOpen(t, e)
	for i := 0; i < 5; i++ {
		_ = e.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v"))
	}
	it, err := e.GetIter()
	if err != nil {
		t.Fatalf("getiter: %v", err)
	}
	defer e.DelIter(it)

	// A 32-byte buffer holds at most two of these 11-byte entries, which
	// forces multiple BatchRead calls; the iterator must resume rather than
	// repeat.
	buf := make([]byte, 32)
	seen := map[string]bool{}
	for {
		nbytes, more, err := e.BatchRead(it, buf)
		if err != nil {
			t.Fatalf("batchread: %v", err)
		}
		entries, err := wire.DecodeBatch(buf, nbytes)
		if err != nil {
			t.Fatalf("decode batch: %v", err)
		}
		for _, ent := range entries {
			if seen[string(ent.Key)] {
				t.Fatalf("key %q read twice, iterator did not resume correctly", ent.Key)
			}
			seen[string(ent.Key)] = true
		}
		if !more {
			break
		}
	}
	if len(seen) != 5 {
		t.Fatalf("resumed batch read saw %d distinct keys, want 5", len(seen))
	}
}

func testRangeReadBounds(t *testing.T, e engine.Engine) {
	e = mustOpen(t, e)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		_ = e.Put([]byte(k), []byte(k))
	}
	rc, ro, err := e.ParseRangeOptions([]byte("b"), []byte("d"), 0, nil)
	if err != nil {
		t.Fatalf("parserangeoptions: %v", err)
	}
	defer e.ClearRangeMeta(rc, ro)

	buf := make([]byte, 4096)
	var got []string
	for {
		nbytes, more, err := e.RangeRead(rc, ro, buf)
		if err != nil {
			t.Fatalf("rangeread: %v", err)
		}
		entries, err := wire.DecodeBatch(buf, nbytes)
		if err != nil {
			t.Fatalf("decode batch: %v", err)
		}
		for _, ent := range entries {
			got = append(got, string(ent.Key))
		}
		if !more {
			break
		}
	}
	want := []string{"b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("range read got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("range read got %v, want %v", got, want)
		}
	}
}

func testEmptyKeyAndValue(t *testing.T, e engine.Engine) {
	e = mustOpen(t, e)
	if err := e.Put([]byte(""), []byte("")); err != nil {
		t.Fatalf("put empty: %v", err)
	}
	v, ok, err := e.Get([]byte(""))
	if err != nil || !ok || len(v) != 0 {
		t.Fatalf("get empty key = v=%q ok=%v err=%v", v, ok, err)
	}
}
