package ipc

import (
	"github.com/dkvbridge/dkvbridge/internal/shm"
	"github.com/dkvbridge/dkvbridge/internal/wire"
)

// ClientSend implements spec §4.2's client_send: acquire the writer mutex,
// wait for the arena to be drained, lease a free response slot, write
// header+entity into the arena, then post ready and release the writer.
//
// If inlineResponseNeeded is false (fire-and-forget ops: Load,
// ClearRangeQuery), the leased slot is released immediately and the
// returned slot id is meaningless to the caller. Otherwise the slot stays
// leased and the caller must eventually call ClientRecv then ReleaseSlot.
func (ch *Channel) ClientSend(op wire.Op, dbID, relID uint32, entity wire.Entity, inlineResponseNeeded bool) (int, error) {
	entitySize := 0
	if entity != nil {
		entitySize = entity.Size()
	}
	if wire.HeaderSize+entitySize > ch.layout.arenaSize {
		return 0, shm.NewError(shm.KindBufferOverflow, "request exceeds arena size")
	}

	if err := ch.semWriter.Wait(); err != nil {
		return 0, err
	}
	defer ch.semWriter.Post()

	if err := ch.semDrained.Wait(); err != nil {
		return 0, err
	}

	slotID, err := ch.leaseSlot()
	if err != nil {
		return 0, err
	}

	h := wire.Header{
		Op:                op,
		DBId:              dbID,
		RelId:             relID,
		Status:            wire.StatusDummy,
		ResponseChannelID: uint32(slotID),
		EntitySize:        uint64(entitySize),
	}
	if err := writeMessage(ch.arenaBytes(), h, entity); err != nil {
		ch.slotFree[slotID].Post()
		return 0, err
	}

	if err := ch.semReady.Post(); err != nil {
		ch.slotFree[slotID].Post()
		return 0, err
	}
	ch.stats.RequestsSent.Add(1)

	if !inlineResponseNeeded {
		if err := ch.slotFree[slotID].Post(); err != nil {
			return 0, err
		}
	}
	return slotID, nil
}

// ClientRecv implements spec §4.2's client_recv: wait for the worker to
// signal the slot ready, then read the response out of it. The slot is not
// released; the caller must call ReleaseSlot separately once done reading
// (spec §4.2: "release is separate so large-payload readers can finish
// reading before the next writer is admitted").
func (ch *Channel) ClientRecv(slotID int) (Message, error) {
	if err := ch.slotReady[slotID].Wait(); err != nil {
		return Message{}, err
	}
	return readMessage(ch.slotBytes(slotID))
}

// ReleaseSlot implements spec §4.2's release_slot: posts sem_slot_free[k],
// making the slot available for the next lease.
func (ch *Channel) ReleaseSlot(slotID int) error {
	return ch.slotFree[slotID].Post()
}
