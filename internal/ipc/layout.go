// Package ipc implements the Channel: the shared-memory message fabric
// between backend client processes and one storage-engine worker, per
// spec §3/§4.2. A Channel wraps a single named segment holding a request
// arena, N response slots, and the semaphores that arbitrate them.
package ipc

import (
	"fmt"

	"github.com/dkvbridge/dkvbridge/internal/shm"
)

// DefaultArenaSize bounds a single request's header+entity. Requests
// larger than this are rejected with BufferOverflow (spec §7/§8 scenario 6)
// rather than silently truncated.
const DefaultArenaSize = 1 << 20 // 1 MiB

// DefaultSlotSize bounds a single inline response's header+entity.
// Anything larger must go through the bulk side-channel (internal/bulk).
const DefaultSlotSize = 64 << 10 // 64 KiB

// DefaultSlotCount is N, the number of independently-leased response slots.
const DefaultSlotCount = 8

// ChannelName returns the POSIX-style shared memory name for a worker's
// channel region, per spec §6 "Named shared-memory objects".
func ChannelName(workerID uint32) string {
	return fmt.Sprintf("/KVChannel%d", workerID)
}

// layout computes byte offsets of every region inside the channel segment.
// It is a pure function of (arenaSize, slotSize, slotCount) so both the
// creator and every opener derive identical offsets without exchanging
// anything beyond those three numbers (carried in Config).
type layout struct {
	arenaSize int
	slotSize  int
	slotCount int

	arenaOff int
	semOff   struct {
		writer  int
		ready   int
		drained int
	}
	slotFreeOff  []int
	slotReadyOff []int
	slotsOff     []int

	totalSize int
}

func newLayout(arenaSize, slotSize, slotCount int) layout {
	l := layout{arenaSize: arenaSize, slotSize: slotSize, slotCount: slotCount}

	pos := 0
	l.arenaOff = pos
	pos += arenaSize

	l.semOff.writer = pos
	pos += shm.SemSize
	l.semOff.ready = pos
	pos += shm.SemSize
	l.semOff.drained = pos
	pos += shm.SemSize

	l.slotFreeOff = make([]int, slotCount)
	l.slotReadyOff = make([]int, slotCount)
	for k := 0; k < slotCount; k++ {
		l.slotFreeOff[k] = pos
		pos += shm.SemSize
		l.slotReadyOff[k] = pos
		pos += shm.SemSize
	}

	l.slotsOff = make([]int, slotCount)
	for k := 0; k < slotCount; k++ {
		l.slotsOff[k] = pos
		pos += slotSize
	}

	l.totalSize = pos
	return l
}

// Config parameterizes a Channel's memory layout. Every process touching a
// given channel (manager, worker, every client) must agree on the same
// Config; there is no on-wire negotiation of sizes.
type Config struct {
	ArenaSize int
	SlotSize  int
	SlotCount int
}

// DefaultConfig returns the sizes used unless a caller overrides them.
func DefaultConfig() Config {
	return Config{ArenaSize: DefaultArenaSize, SlotSize: DefaultSlotSize, SlotCount: DefaultSlotCount}
}

func (c Config) normalize() Config {
	if c.ArenaSize <= 0 {
		c.ArenaSize = DefaultArenaSize
	}
	if c.SlotSize <= 0 {
		c.SlotSize = DefaultSlotSize
	}
	if c.SlotCount <= 0 {
		c.SlotCount = DefaultSlotCount
	}
	return c
}
