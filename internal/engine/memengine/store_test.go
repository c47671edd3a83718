package memengine

import (
	"context"
	"fmt"
	"testing"

	"github.com/dkvbridge/dkvbridge/internal/engine"
	"github.com/dkvbridge/dkvbridge/internal/wire"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	if err := s.Open(context.Background(), "/data/t", engine.Options{}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestPutGetDeleteCount(t *testing.T) {
	s := openStore(t)

	if err := s.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	n, err := s.Count()
	if err != nil || n != 1 {
		t.Fatalf("Count = %d, %v", n, err)
	}
	v, ok, err := s.Get([]byte("a"))
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}
	existed, err := s.Delete([]byte("a"))
	if err != nil || !existed {
		t.Fatalf("Delete = %v, %v", existed, err)
	}
	if _, ok, _ := s.Get([]byte("a")); ok {
		t.Fatal("expected miss after delete")
	}
	n, _ = s.Count()
	if n != 0 {
		t.Fatalf("Count after delete = %d", n)
	}
}

func TestCursorResumptionCoversAllKeys(t *testing.T) {
	s := openStore(t)
	const total = 500
	for i := 0; i < total; i++ {
		if err := s.Put([]byte(fmt.Sprintf("k%04d", i)), []byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	it, err := s.GetIter()
	if err != nil {
		t.Fatalf("GetIter: %v", err)
	}
	defer s.DelIter(it)

	seen := map[string]bool{}
	buf := make([]byte, 512) // small buffer forces many batches
	for {
		n, more, err := s.BatchRead(it, buf)
		if err != nil {
			t.Fatalf("BatchRead: %v", err)
		}
		entries, err := wire.DecodeBatch(buf, n)
		if err != nil {
			t.Fatalf("DecodeBatch: %v", err)
		}
		for _, e := range entries {
			if seen[string(e.Key)] {
				t.Fatalf("key %q delivered twice", e.Key)
			}
			seen[string(e.Key)] = true
		}
		if !more {
			break
		}
	}
	if len(seen) != total {
		t.Fatalf("saw %d keys, want %d", len(seen), total)
	}
}

func TestRangeReadRespectsBounds(t *testing.T) {
	s := openStore(t)
	for i := 0; i < 10; i++ {
		s.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v"))
	}

	rc, opts, err := s.ParseRangeOptions([]byte("k2"), []byte("k5"), 4096, nil)
	if err != nil {
		t.Fatalf("ParseRangeOptions: %v", err)
	}

	buf := make([]byte, 4096)
	var got []string
	for {
		n, more, err := s.RangeRead(rc, opts, buf)
		if err != nil {
			t.Fatalf("RangeRead: %v", err)
		}
		entries, err := wire.DecodeBatch(buf, n)
		if err != nil {
			t.Fatalf("DecodeBatch: %v", err)
		}
		for _, e := range entries {
			got = append(got, string(e.Key))
		}
		if !more {
			break
		}
	}
	// Lexicographic range over string keys "k0".."k9": [k2, k5] = k2,k3,k4,k5.
	want := []string{"k2", "k3", "k4", "k5"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
	if err := s.ClearRangeMeta(rc, opts); err != nil {
		t.Fatalf("ClearRangeMeta: %v", err)
	}
}
