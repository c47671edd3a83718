package manager

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/dkvbridge/dkvbridge/internal/ipc"
	"github.com/dkvbridge/dkvbridge/internal/shm"
)

func requireShm(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/shm"); err != nil {
		t.Skip("/dev/shm not available on this platform")
	}
}

func testChannelCfg() ipc.Config {
	return ipc.Config{ArenaSize: 4096, SlotSize: 4096, SlotCount: 4}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return New(Config{
		SocketPath:   "",
		WorkerBinary: "/bin/true",
		ReapInterval: time.Hour, // driven manually in tests
		ChannelCfg:   testChannelCfg(),
	})
}

func TestReapDetectsDeadWorker(t *testing.T) {
	requireShm(t)
	m := newTestManager(t)

	workerID := uint32(os.Getpid())
	ch, err := ipc.Create(workerID, testChannelCfg())
	if err != nil {
		t.Fatalf("ipc.Create: %v", err)
	}

	cmd := exec.Command("/bin/true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	cmd.Wait() // process is now dead

	m.workers.Store(workerID, &workerEntry{
		workerID: workerID,
		pid:      cmd.Process.Pid,
		cmd:      cmd,
		ch:       ch,
		ready:    make(chan struct{}),
	})

	m.reapDead()

	if _, ok := m.workers.Load(workerID); ok {
		t.Fatal("dead worker was not reaped from the registry")
	}
	if _, err := shm.Open(ch.Name(), 4096); err == nil {
		t.Fatal("channel segment should have been unlinked by reaping")
	}
}

func TestReapKeepsLiveWorker(t *testing.T) {
	requireShm(t)
	m := newTestManager(t)

	workerID := uint32(os.Getpid()) + 1
	ch, err := ipc.Create(workerID, testChannelCfg())
	if err != nil {
		t.Fatalf("ipc.Create: %v", err)
	}
	defer ch.Destroy()

	cmd := exec.Command("/bin/sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer cmd.Process.Kill()

	m.workers.Store(workerID, &workerEntry{
		workerID: workerID,
		pid:      cmd.Process.Pid,
		cmd:      cmd,
		ch:       ch,
		ready:    make(chan struct{}),
	})

	m.reapDead()

	if _, ok := m.workers.Load(workerID); !ok {
		t.Fatal("live worker was incorrectly reaped")
	}
}

func TestTerminateDestroysChannelAndRegistryEntry(t *testing.T) {
	requireShm(t)
	m := newTestManager(t)

	workerID := uint32(os.Getpid()) + 2
	ch, err := ipc.Create(workerID, testChannelCfg())
	if err != nil {
		t.Fatalf("ipc.Create: %v", err)
	}

	cmd := exec.Command("/bin/true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	m.workers.Store(workerID, &workerEntry{
		workerID: workerID,
		dbID:     1,
		pid:      cmd.Process.Pid,
		cmd:      cmd,
		ch:       ch,
		ready:    make(chan struct{}),
	})

	if err := m.terminate(workerID); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if _, ok := m.workers.Load(workerID); ok {
		t.Fatal("terminated worker still in registry")
	}
	if _, err := shm.Open(ch.Name(), 4096); err == nil {
		t.Fatal("channel segment should have been unlinked by terminate")
	}
}

func TestTerminateUnknownWorkerErrors(t *testing.T) {
	m := newTestManager(t)
	if err := m.terminate(12345); err == nil {
		t.Fatal("expected error for unknown worker")
	}
}

func TestMarkReadyUnblocksLaunch(t *testing.T) {
	requireShm(t)
	m := newTestManager(t)
	workerID := uint32(os.Getpid()) + 3
	ch, err := ipc.Create(workerID, testChannelCfg())
	if err != nil {
		t.Fatalf("ipc.Create: %v", err)
	}
	defer ch.Destroy()

	entry := &workerEntry{workerID: workerID, ch: ch, ready: make(chan struct{})}
	m.workers.Store(workerID, entry)

	done := make(chan struct{})
	go func() {
		<-entry.ready
		close(done)
	}()

	m.markReady(workerID)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("markReady did not unblock waiter")
	}

	// Idempotent: a second markReady must not panic on a closed channel.
	m.markReady(workerID)
}
