package client

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/dkvbridge/dkvbridge/internal/engine"
	"github.com/dkvbridge/dkvbridge/internal/engine/memengine"
	"github.com/dkvbridge/dkvbridge/internal/ipc"
	"github.com/dkvbridge/dkvbridge/internal/worker"
)

func requireShm(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/shm"); err != nil {
		t.Skip("/dev/shm not available on this platform")
	}
}

// harness wires a real worker.State against one half of a real ipc.Channel
// and this package's Client against the other half, without a process
// boundary, so the request/response/bulk-segment round trip is exercised
// end to end.
type harness struct {
	client *Client
	cancel context.CancelFunc
	done   chan error
}

func newHarness(t *testing.T, workerID uint32) *harness {
	t.Helper()
	requireShm(t)

	cfg := ipc.Config{ArenaSize: 8192, SlotSize: 8192, SlotCount: 4}
	workerCh, err := ipc.Create(workerID, cfg)
	if err != nil {
		t.Fatalf("ipc.Create: %v", err)
	}
	t.Cleanup(func() { workerCh.Destroy() })

	eng := memengine.New()
	s := worker.New(workerID, 1, workerCh, eng)
	if err := s.BootstrapOpen(context.Background(), t.TempDir(), engine.Options{}); err != nil {
		t.Fatalf("BootstrapOpen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	clientCh, err := ipc.Open(workerID, cfg)
	if err != nil {
		cancel()
		t.Fatalf("ipc.Open: %v", err)
	}
	t.Cleanup(func() { clientCh.Close() })

	c := &Client{ch: clientCh, workerID: workerID, dbID: 1, pid: uint32(os.Getpid())}
	if err := c.Open(t.TempDir(), false, 0, nil); err != nil {
		cancel()
		t.Fatalf("client Open: %v", err)
	}

	h := &harness{client: c, cancel: cancel, done: done}
	t.Cleanup(func() {
		c.Close()
		h.stopWorker(t)
	})
	return h
}

func (h *harness) stopWorker(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after cancel")
	}
}

func TestPutGetDeleteRoundtrip(t *testing.T) {
	h := newHarness(t, 9001)
	c := h.client

	if err := c.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	value, ok, err := c.Get([]byte("a"))
	if err != nil || !ok {
		t.Fatalf("Get hit: value=%q ok=%v err=%v", value, ok, err)
	}
	if string(value) != "1" {
		t.Fatalf("Get returned %q, want %q", value, "1")
	}

	if _, ok, err := c.Get([]byte("missing")); err != nil || ok {
		t.Fatalf("Get miss: ok=%v err=%v", ok, err)
	}

	existed, err := c.Delete([]byte("a"))
	if err != nil || !existed {
		t.Fatalf("Delete hit: existed=%v err=%v", existed, err)
	}
	if existed, err := c.Delete([]byte("a")); err != nil || existed {
		t.Fatalf("Delete miss: existed=%v err=%v", existed, err)
	}
}

func TestCountReflectsPuts(t *testing.T) {
	h := newHarness(t, 9002)
	c := h.client

	for i := 0; i < 10; i++ {
		if err := c.Put([]byte(fmt.Sprintf("k%02d", i)), []byte("v")); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}
	n, err := c.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 10 {
		t.Fatalf("Count = %d, want 10", n)
	}
}

func TestCursorReadsAllKeys(t *testing.T) {
	h := newHarness(t, 9003)
	c := h.client

	const n = 30
	for i := 0; i < n; i++ {
		if err := c.Put([]byte(fmt.Sprintf("k%03d", i)), []byte(fmt.Sprintf("v%03d", i))); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}

	cur := c.OpenCursor()
	seen := 0
	for {
		entries, next, err := cur.ReadBatch()
		if err != nil {
			t.Fatalf("ReadBatch: %v", err)
		}
		seen += len(entries)
		if !next {
			break
		}
	}
	if seen != n {
		t.Fatalf("cursor saw %d entries, want %d", seen, n)
	}
	if err := cur.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRangeQueryBounds(t *testing.T) {
	h := newHarness(t, 9004)
	c := h.client

	keys := []string{"k0", "k1", "k2", "k3", "k4"}
	for _, k := range keys {
		if err := c.Put([]byte(k), []byte("v")); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}

	rq := c.OpenRangeQuery()
	total := 0
	entries, next, err := rq.Start([]byte("k1"), []byte("k3"), 4096, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	total += len(entries)
	for next {
		entries, next, err = rq.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		total += len(entries)
	}
	if total != 3 {
		t.Fatalf("range query saw %d entries, want 3 (k1,k2,k3)", total)
	}
	if err := rq.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
