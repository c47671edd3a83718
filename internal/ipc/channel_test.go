package ipc

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/dkvbridge/dkvbridge/internal/shm"
	"github.com/dkvbridge/dkvbridge/internal/wire"
)

func requireShm(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/shm"); err != nil {
		t.Skip("/dev/shm not available on this platform")
	}
}

func testConfig() Config {
	return Config{ArenaSize: 4096, SlotSize: 4096, SlotCount: 4}
}

func newTestChannel(t *testing.T) (*Channel, uint32) {
	t.Helper()
	requireShm(t)
	workerID := uint32(os.Getpid())
	ch, err := Create(workerID, testConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { ch.Destroy() })
	return ch, workerID
}

func TestRequestResponseMatching(t *testing.T) {
	ch, _ := newTestChannel(t)

	go func() {
		req, err := ch.WorkerRecvRequest()
		if err != nil {
			t.Errorf("WorkerRecvRequest: %v", err)
			return
		}
		key := wire.DecodeKeyArgs(req.Body)
		resp := &wire.KeyArgs{Key: []byte("value-for-" + string(key.Key))}
		h := wire.Header{Op: req.Header.Op, DBId: req.Header.DBId, RelId: req.Header.RelId, Status: wire.StatusSuccess}
		if err := ch.WorkerSendResponse(int(req.Header.ResponseChannelID), h, resp); err != nil {
			t.Errorf("WorkerSendResponse: %v", err)
		}
	}()

	slotID, err := ch.ClientSend(wire.OpGet, 1, 1, &wire.KeyArgs{Key: []byte("a")}, true)
	if err != nil {
		t.Fatalf("ClientSend: %v", err)
	}
	msg, err := ch.ClientRecv(slotID)
	if err != nil {
		t.Fatalf("ClientRecv: %v", err)
	}
	if err := ch.ReleaseSlot(slotID); err != nil {
		t.Fatalf("ReleaseSlot: %v", err)
	}
	if string(msg.Body) != "value-for-a" {
		t.Fatalf("got %q", msg.Body)
	}
	if msg.Header.Status != wire.StatusSuccess {
		t.Fatalf("got status %v", msg.Header.Status)
	}
}

func TestSlotIsolation(t *testing.T) {
	ch, _ := newTestChannel(t)
	const n = 4

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			req, err := ch.WorkerRecvRequest()
			if err != nil {
				t.Errorf("WorkerRecvRequest: %v", err)
				return
			}
			key := wire.DecodeKeyArgs(req.Body)
			h := wire.Header{Op: req.Header.Op, Status: wire.StatusSuccess}
			resp := &wire.KeyArgs{Key: append([]byte("echo:"), key.Key...)}
			if err := ch.WorkerSendResponse(int(req.Header.ResponseChannelID), h, resp); err != nil {
				t.Errorf("WorkerSendResponse: %v", err)
			}
		}
	}()

	slots := make([]int, n)
	for i := 0; i < n; i++ {
		slot, err := ch.ClientSend(wire.OpGet, 0, 0, &wire.KeyArgs{Key: []byte(fmt.Sprintf("k%d", i))}, true)
		if err != nil {
			t.Fatalf("ClientSend: %v", err)
		}
		slots[i] = slot
	}
	for i, slot := range slots {
		msg, err := ch.ClientRecv(slot)
		if err != nil {
			t.Fatalf("ClientRecv: %v", err)
		}
		want := fmt.Sprintf("echo:k%d", i)
		if string(msg.Body) != want {
			t.Fatalf("slot %d: got %q want %q", slot, msg.Body, want)
		}
		if err := ch.ReleaseSlot(slot); err != nil {
			t.Fatalf("ReleaseSlot: %v", err)
		}
	}
	wg.Wait()
}

func TestArenaDrainOrdering(t *testing.T) {
	ch, _ := newTestChannel(t)

	seen := make(chan string, 2)
	go func() {
		for i := 0; i < 2; i++ {
			req, err := ch.WorkerRecvRequest()
			if err != nil {
				t.Errorf("WorkerRecvRequest: %v", err)
				return
			}
			key := wire.DecodeKeyArgs(req.Body)
			seen <- string(key.Key)
			h := wire.Header{Op: req.Header.Op, Status: wire.StatusSuccess}
			ch.WorkerSendResponse(int(req.Header.ResponseChannelID), h, nil)
		}
	}()

	slot1, err := ch.ClientSend(wire.OpGet, 0, 0, &wire.KeyArgs{Key: []byte("first")}, true)
	if err != nil {
		t.Fatalf("ClientSend 1: %v", err)
	}
	if _, err := ch.ClientRecv(slot1); err != nil {
		t.Fatalf("ClientRecv 1: %v", err)
	}
	ch.ReleaseSlot(slot1)

	slot2, err := ch.ClientSend(wire.OpGet, 0, 0, &wire.KeyArgs{Key: []byte("second")}, true)
	if err != nil {
		t.Fatalf("ClientSend 2: %v", err)
	}
	if _, err := ch.ClientRecv(slot2); err != nil {
		t.Fatalf("ClientRecv 2: %v", err)
	}
	ch.ReleaseSlot(slot2)

	first := <-seen
	second := <-seen
	if first != "first" || second != "second" {
		t.Fatalf("got order %q, %q", first, second)
	}
}

func TestSlotContentionNoDeadlock(t *testing.T) {
	ch, _ := newTestChannel(t)
	const clients = 2
	const opsPerClient = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < clients*opsPerClient; i++ {
			req, err := ch.WorkerRecvRequest()
			if err != nil {
				t.Errorf("WorkerRecvRequest: %v", err)
				return
			}
			h := wire.Header{Op: req.Header.Op, Status: wire.StatusSuccess}
			if err := ch.WorkerSendResponse(int(req.Header.ResponseChannelID), h, nil); err != nil {
				t.Errorf("WorkerSendResponse: %v", err)
				return
			}
		}
	}()

	var clientWg sync.WaitGroup
	for c := 0; c < clients; c++ {
		clientWg.Add(1)
		go func(c int) {
			defer clientWg.Done()
			for i := 0; i < opsPerClient; i++ {
				slot, err := ch.ClientSend(wire.OpGet, 0, 0, &wire.KeyArgs{Key: []byte("k")}, true)
				if err != nil {
					t.Errorf("client %d ClientSend: %v", c, err)
					return
				}
				if _, err := ch.ClientRecv(slot); err != nil {
					t.Errorf("client %d ClientRecv: %v", c, err)
					return
				}
				if err := ch.ReleaseSlot(slot); err != nil {
					t.Errorf("client %d ReleaseSlot: %v", c, err)
					return
				}
			}
		}(c)
	}
	clientWg.Wait()
	wg.Wait()
}

func TestClientSendBufferOverflow(t *testing.T) {
	ch, _ := newTestChannel(t)
	big := &wire.KeyArgs{Key: make([]byte, ch.ArenaSize())}
	_, err := ch.ClientSend(wire.OpGet, 0, 0, big, true)
	if err == nil {
		t.Fatal("expected BufferOverflow error")
	}
	if !shm.IsKind(err, shm.KindBufferOverflow) {
		t.Fatalf("got %v, want BufferOverflow", err)
	}

	// The writer mutex must have been released: a follow-up send succeeds.
	slotID, err := ch.ClientSend(wire.OpGet, 0, 0, &wire.KeyArgs{Key: []byte("ok")}, true)
	if err != nil {
		t.Fatalf("ClientSend after overflow: %v", err)
	}
	req, err := ch.WorkerRecvRequest()
	if err != nil {
		t.Fatalf("WorkerRecvRequest: %v", err)
	}
	if string(req.Body) != "ok" {
		t.Fatalf("got %q", req.Body)
	}
	ch.WorkerSendResponse(slotID, wire.Header{Status: wire.StatusSuccess}, nil)
	ch.ClientRecv(slotID)
	ch.ReleaseSlot(slotID)
}

func TestFireAndForgetReleasesSlotImmediately(t *testing.T) {
	ch, _ := newTestChannel(t)
	slotID, err := ch.ClientSend(wire.OpLoad, 0, 0, &wire.PutArgs{Key: []byte("k"), Value: []byte("v")}, false)
	if err != nil {
		t.Fatalf("ClientSend: %v", err)
	}
	ok, err := ch.slotFree[slotID].TryWait()
	if err != nil {
		t.Fatalf("TryWait: %v", err)
	}
	if !ok {
		t.Fatalf("slot %d was not released for a fire-and-forget send", slotID)
	}
	ch.slotFree[slotID].Post()

	req, err := ch.WorkerRecvRequest()
	if err != nil {
		t.Fatalf("WorkerRecvRequest: %v", err)
	}
	if req.Header.Op != wire.OpLoad {
		t.Fatalf("got op %v", req.Header.Op)
	}
}
