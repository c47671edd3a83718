package ipc

import "github.com/dkvbridge/dkvbridge/internal/wire"

// WorkerRecvRequest implements spec §4.2's worker_recv_request: wait for a
// posted request, copy the arena into a local buffer, then post drained so
// the next writer is admitted. The worker never reads the arena directly
// outside this window (spec §5 "Shared-resource policy").
func (ch *Channel) WorkerRecvRequest() (Message, error) {
	if err := ch.semReady.Wait(); err != nil {
		return Message{}, err
	}
	msg, err := readMessage(ch.arenaBytes())
	if perr := ch.semDrained.Post(); perr != nil && err == nil {
		err = perr
	}
	if err != nil {
		return Message{}, err
	}
	ch.stats.RequestsDrained.Add(1)
	return msg, nil
}

// WorkerSendResponse implements spec §4.2's worker_send_response: write
// header+entity into the leased slot, then post sem_slot_ready[slotID] to
// wake the client waiting in ClientRecv.
func (ch *Channel) WorkerSendResponse(slotID int, h wire.Header, entity wire.Entity) error {
	entitySize := 0
	if entity != nil {
		entitySize = entity.Size()
	}
	h.EntitySize = uint64(entitySize)
	h.ResponseChannelID = uint32(slotID)
	if wire.HeaderSize+entitySize > ch.layout.slotSize {
		return wire.NewProtocolError("response exceeds slot size")
	}
	if err := writeMessage(ch.slotBytes(slotID), h, entity); err != nil {
		return err
	}
	ch.stats.ResponsesSent.Add(1)
	return ch.slotReady[slotID].Post()
}
