// Package manager implements the process supervisor spec §4.5 describes:
// Launch spawns one worker process per (database, worker-id) and creates
// its channel; Terminate signals a worker to exit and reclaims its
// resources; a background reaper notices workers that died without a
// Terminate and cleans up after them. Grounded on the teacher's
// rpc/server package for the "own a registry, drive it from a control
// handler" shape, adapted from a Raft-shard registry
// (map[shardID]*rsmState driven by dragonboat) to a worker-process
// registry (map[workerID]*workerEntry driven by os/exec), using
// puzpuzpuz/xsync for the registry the same way rpc/transport/base uses
// it for its request-correlation map.
package manager

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/dkvbridge/dkvbridge/internal/control"
	"github.com/dkvbridge/dkvbridge/internal/ipc"
	"github.com/dkvbridge/dkvbridge/internal/logging"
	"github.com/dkvbridge/dkvbridge/internal/wire"
)

const workerReadyTimeout = 10 * time.Second

// workerEntry is one running worker's supervisor-side bookkeeping.
type workerEntry struct {
	workerID uint32
	dbID     uint32
	pid      int
	cmd      *exec.Cmd
	ch       *ipc.Channel

	readyOnce sync.Once
	ready     chan struct{}
}

// Config configures the manager's spawn and reaping behavior.
type Config struct {
	SocketPath string
	// WorkerBinary is the executable to spawn for each worker. WorkerArgs
	// is prepended before the standard --worker-id/--db-id/... flags, for
	// callers whose worker binary is really a multi-command binary
	// invoked as e.g. "dkvbridge worker" (cmd/manager sets this to
	// []string{"worker"} when WorkerBinary defaults to its own
	// executable).
	WorkerBinary string
	WorkerArgs   []string
	ReapInterval time.Duration
	ChannelCfg   ipc.Config
}

// Manager supervises worker processes and their channels.
type Manager struct {
	cfg      Config
	workers  *xsync.MapOf[uint32, *workerEntry]
	ctrl     *control.Server
	log      *logging.Logger
	stopReap chan struct{}
}

// New constructs a Manager. Call Run to start serving.
func New(cfg Config) *Manager {
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 5 * time.Second
	}
	m := &Manager{
		cfg:      cfg,
		workers:  xsync.NewMapOf[uint32, *workerEntry](),
		log:      logging.Get("manager"),
		stopReap: make(chan struct{}),
	}
	m.ctrl = control.NewServer(cfg.SocketPath)
	m.ctrl.RegisterHandler(m.handle)
	return m
}

// Run starts the reaper and blocks serving control-plane connections until
// ctx is canceled or Listen fails.
func (m *Manager) Run(ctx context.Context) error {
	go m.reapLoop()
	errCh := make(chan error, 1)
	go func() { errCh <- m.ctrl.Listen() }()

	select {
	case <-ctx.Done():
		close(m.stopReap)
		m.ctrl.Close()
		return ctx.Err()
	case err := <-errCh:
		close(m.stopReap)
		return err
	}
}

func (m *Manager) handle(req control.Message) control.Message {
	switch req.MsgType {
	case control.MsgTLaunch:
		name, err := m.launch(req)
		return control.NewLaunchResponse(name, err)
	case control.MsgTTerminate:
		return control.NewTerminateResponse(m.terminate(req.WorkerID))
	case control.MsgTWorkerReady:
		m.markReady(req.WorkerID)
		return control.NewAckResponse()
	default:
		return control.NewLaunchResponse("", fmt.Errorf("manager: unknown message type %v", req.MsgType))
	}
}

// launch implements spec §4.5 Launch: create the channel, spawn the
// worker with its path/options on the command line, and wait for the
// worker to report ready before returning the channel name.
func (m *Manager) launch(req control.Message) (string, error) {
	if _, exists := m.workers.Load(req.WorkerID); exists {
		return "", fmt.Errorf("manager: worker %d already running", req.WorkerID)
	}

	ch, err := ipc.Create(req.WorkerID, m.cfg.ChannelCfg)
	if err != nil {
		return "", fmt.Errorf("manager: create channel: %w", err)
	}

	args := append(append([]string(nil), m.cfg.WorkerArgs...),
		"--worker-id", strconv.FormatUint(uint64(req.WorkerID), 10),
		"--db-id", strconv.FormatUint(uint64(req.DBId), 10),
		"--path", req.Path,
		"--column", strconv.FormatBool(req.Column),
		"--attr-count", strconv.FormatInt(int64(req.AttrCount), 10),
		"--control-socket", m.cfg.SocketPath,
		"--arena-size", strconv.Itoa(ch.ArenaSize()),
		"--slot-size", strconv.Itoa(ch.SlotSize()),
		"--slot-count", strconv.Itoa(ch.SlotCount()),
	)
	cmd := exec.Command(m.cfg.WorkerBinary, args...)

	entry := &workerEntry{workerID: req.WorkerID, dbID: req.DBId, ch: ch, ready: make(chan struct{})}
	if err := cmd.Start(); err != nil {
		ch.Destroy()
		return "", fmt.Errorf("manager: start worker: %w", err)
	}
	entry.pid = cmd.Process.Pid
	entry.cmd = cmd
	m.workers.Store(req.WorkerID, entry)

	workerLog := m.log.WithFields("worker_id", req.WorkerID, "pid", entry.pid)
	select {
	case <-entry.ready:
	case <-time.After(workerReadyTimeout):
		m.workers.Delete(req.WorkerID)
		cmd.Process.Kill()
		ch.Destroy()
		return "", fmt.Errorf("manager: worker %d did not become ready in time", req.WorkerID)
	}

	workerLog.Infof("ready on %s", ch.Name())
	return ch.Name(), nil
}

// terminate implements spec §4.5 Terminate: post the fire-and-forget
// Terminate op over IPC (Op.HasResponse is false for it, per
// internal/wire), wait for the process to exit, then reclaim the channel.
func (m *Manager) terminate(workerID uint32) error {
	entry, ok := m.workers.Load(workerID)
	if !ok {
		return fmt.Errorf("manager: worker %d not running", workerID)
	}
	m.workers.Delete(workerID)

	workerLog := m.log.WithFields("worker_id", workerID, "pid", entry.pid)
	if _, err := entry.ch.ClientSend(wire.OpTerminate, entry.dbID, 0, nil, false); err != nil {
		workerLog.Warningf("send Terminate: %v", err)
	}

	done := make(chan struct{})
	go func() { entry.cmd.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(workerReadyTimeout):
		workerLog.Warningf("did not exit after Terminate, killing")
		entry.cmd.Process.Kill()
		<-done
	}

	return entry.ch.Destroy()
}

func (m *Manager) markReady(workerID uint32) {
	if entry, ok := m.workers.Load(workerID); ok {
		entry.readyOnce.Do(func() { close(entry.ready) })
	}
}

// reapLoop periodically probes every registered worker's liveness and
// reclaims any that died without going through Terminate, per spec §3
// "Lifecycle: leaked cursors are reclaimed on worker shutdown" extended to
// the process level.
func (m *Manager) reapLoop() {
	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopReap:
			return
		case <-ticker.C:
			m.reapDead()
		}
	}
}

func (m *Manager) reapDead() {
	var dead []uint32
	m.workers.Range(func(workerID uint32, entry *workerEntry) bool {
		if err := syscall.Kill(entry.pid, 0); err != nil {
			dead = append(dead, workerID)
		}
		return true
	})
	for _, workerID := range dead {
		entry, ok := m.workers.LoadAndDelete(workerID)
		if !ok {
			continue
		}
		workerLog := m.log.WithFields("worker_id", workerID, "pid", entry.pid)
		workerLog.Warningf("died without Terminate, reaping")
		if err := entry.ch.Destroy(); err != nil {
			workerLog.Errorf("destroy channel: %v", err)
		}
	}
}
