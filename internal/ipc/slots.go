package ipc

import (
	"time"

	"github.com/dkvbridge/dkvbridge/internal/metrics"
)

// slotLeaseBackoff bounds the pause between full rescans of the slot table
// once every slot has come back busy once already, per spec §4.2.1: a
// rescan, not a wait tied to any single slot, so any slot freed by any
// other client is noticed on the next sweep. Mirrors the
// teacher's own retry-with-sleep pattern in lib/store/dstore/store.go.
const slotLeaseBackoff = 100 * time.Microsecond

// leaseSlot implements spec §4.2.1's response-slot leasing: try sem_trywait
// on each sem_slot_free[k] in turn, in order, looping on full failure. This
// is called while the caller already holds sem_request_writer, so no two
// clients race here; the loop only spins waiting for another client to
// release its slot (ReleaseSlot, or the post a fire-and-forget send makes).
//
// Fairness is not guaranteed, per spec §4.2.1/§9 — deliberately, since
// callers are few and contention is moderate. A full sweep that finds every
// slot busy backs off briefly and rescans from the top; it never blocks on
// any one slot's semaphore specifically, since a slot other than the one
// waited on may be the one that actually frees up next.
func (ch *Channel) leaseSlot() (int, error) {
	for {
		for k := 0; k < ch.layout.slotCount; k++ {
			ch.stats.SlotLeaseAttempts.Add(1)
			ok, err := ch.slotFree[k].TryWait()
			if err != nil {
				return 0, err
			}
			if ok {
				return k, nil
			}
		}
		ch.stats.SlotLeaseWaits.Add(1)
		metrics.SlotLeaseWait(ch.workerID)
		time.Sleep(slotLeaseBackoff)
	}
}
