package ipc

import (
	"sync/atomic"

	"github.com/dkvbridge/dkvbridge/internal/shm"
)

// Channel is one worker's shared-memory message fabric: a single request
// arena plus N response slots, guarded by the semaphore triple and per-slot
// semaphore pairs described in spec §3 ("Channel").
type Channel struct {
	seg    *shm.Segment
	layout layout

	semWriter  *shm.Sem
	semReady   *shm.Sem
	semDrained *shm.Sem
	slotFree   []*shm.Sem
	slotReady  []*shm.Sem

	name     string
	workerID uint32
	stats    Stats
}

// Stats are cumulative counters read through Channel.Stats; they are not
// exported through internal/metrics, which counts slot-lease waits
// separately. They are observational only and never gate protocol behavior.
type Stats struct {
	RequestsSent      atomic.Uint64
	RequestsDrained   atomic.Uint64
	ResponsesSent     atomic.Uint64
	SlotLeaseAttempts atomic.Uint64
	SlotLeaseWaits    atomic.Uint64
}

// Create allocates a brand-new channel segment for workerID and initializes
// every semaphore. Called by the manager when launching a worker (spec
// §3 "Lifecycle: Channel").
func Create(workerID uint32, cfg Config) (*Channel, error) {
	cfg = cfg.normalize()
	l := newLayout(cfg.ArenaSize, cfg.SlotSize, cfg.SlotCount)
	name := ChannelName(workerID)

	shm.Unlink(name) // spec §9: unlink stale entries before create.
	seg, err := shm.Create(name, l.totalSize)
	if err != nil {
		return nil, err
	}

	ch := newChannel(name, workerID, seg, l)
	if err := ch.semWriter.Init(1); err != nil {
		return nil, err
	}
	if err := ch.semReady.Init(0); err != nil {
		return nil, err
	}
	if err := ch.semDrained.Init(1); err != nil {
		return nil, err
	}
	for k := 0; k < cfg.SlotCount; k++ {
		if err := ch.slotFree[k].Init(1); err != nil {
			return nil, err
		}
		if err := ch.slotReady[k].Init(0); err != nil {
			return nil, err
		}
	}
	return ch, nil
}

// Open attaches to an already-created channel segment for workerID. Called
// by both the worker (once, at startup) and every client backend process.
func Open(workerID uint32, cfg Config) (*Channel, error) {
	cfg = cfg.normalize()
	l := newLayout(cfg.ArenaSize, cfg.SlotSize, cfg.SlotCount)
	name := ChannelName(workerID)

	seg, err := shm.Open(name, l.totalSize)
	if err != nil {
		return nil, err
	}
	return newChannel(name, workerID, seg, l), nil
}

func newChannel(name string, workerID uint32, seg *shm.Segment, l layout) *Channel {
	ch := &Channel{seg: seg, layout: l, name: name, workerID: workerID}
	ch.semWriter = shm.AtOffset(seg, l.semOff.writer)
	ch.semReady = shm.AtOffset(seg, l.semOff.ready)
	ch.semDrained = shm.AtOffset(seg, l.semOff.drained)
	ch.slotFree = make([]*shm.Sem, l.slotCount)
	ch.slotReady = make([]*shm.Sem, l.slotCount)
	for k := 0; k < l.slotCount; k++ {
		ch.slotFree[k] = shm.AtOffset(seg, l.slotFreeOff[k])
		ch.slotReady[k] = shm.AtOffset(seg, l.slotReadyOff[k])
	}
	return ch
}

// SlotCount returns N, the number of response slots.
func (ch *Channel) SlotCount() int { return ch.layout.slotCount }

// ArenaSize returns the maximum header+entity size a request may occupy.
func (ch *Channel) ArenaSize() int { return ch.layout.arenaSize }

// SlotSize returns the maximum header+entity size an inline response may occupy.
func (ch *Channel) SlotSize() int { return ch.layout.slotSize }

// Name returns the channel's shared-memory segment name.
func (ch *Channel) Name() string { return ch.name }

// Stats returns a snapshot of the channel's cumulative counters.
func (ch *Channel) Stats() *Stats { return &ch.stats }

func (ch *Channel) arenaBytes() []byte {
	b := ch.seg.Bytes()
	return b[ch.layout.arenaOff : ch.layout.arenaOff+ch.layout.arenaSize]
}

func (ch *Channel) slotBytes(k int) []byte {
	b := ch.seg.Bytes()
	off := ch.layout.slotsOff[k]
	return b[off : off+ch.layout.slotSize]
}

// Close unmaps the channel segment without destroying the semaphores or
// unlinking the name. Every client and the worker call this when they are
// done with the channel; only the manager calls Destroy.
func (ch *Channel) Close() error {
	return ch.seg.Close()
}

// Destroy tears the channel down: destroys every semaphore, unmaps, and
// unlinks the segment name. Called once by the manager after the worker
// exits normally (spec §3 "Lifecycle: Channel").
func (ch *Channel) Destroy() error {
	sems := make([]*shm.Sem, 0, 3+2*ch.layout.slotCount)
	sems = append(sems, ch.semWriter, ch.semReady, ch.semDrained)
	sems = append(sems, ch.slotFree...)
	sems = append(sems, ch.slotReady...)
	var firstErr error
	for _, s := range sems {
		if err := s.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := ch.seg.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := shm.Unlink(ch.name); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
