// Package client is the backend process's view of a worker: a thin
// wrapper over internal/ipc's client half plus the internal/wire codecs,
// in the shape of the teacher's rpc/client package (one method per
// operation, returning (value, ok, err) or (ok, err) tuples mirroring
// store.IStore) adapted from a network RPC call to a shared-memory
// request/response round trip.
package client

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/dkvbridge/dkvbridge/internal/ipc"
	"github.com/dkvbridge/dkvbridge/internal/wire"
)

// Client is one backend process's connection to a single worker's channel.
// A process holding handles to several databases opens one Client per
// worker (spec §3: "one process per (database, worker-id)").
type Client struct {
	ch       *ipc.Channel
	workerID uint32
	dbID     uint32
	pid      uint32

	nextCursorID atomic.Uint64
}

// Connect attaches to an already-created worker channel, per spec §4.5:
// the caller obtains channel_name/worker_id from a prior Launch and then
// maps the same channel independently.
func Connect(workerID, dbID uint32, cfg ipc.Config) (*Client, error) {
	ch, err := ipc.Open(workerID, cfg)
	if err != nil {
		return nil, fmt.Errorf("client: open channel: %w", err)
	}
	return &Client{ch: ch, workerID: workerID, dbID: dbID, pid: uint32(os.Getpid())}, nil
}

// Disconnect unmaps the channel without tearing it down; the worker and
// other clients may still be using it.
func (c *Client) Disconnect() error {
	return c.ch.Close()
}

// call is the shared request/response round trip used by every op below:
// send, wait for the response, decode the header, release the slot.
func (c *Client) call(op wire.Op, entity wire.Entity) (wire.Header, []byte, error) {
	slotID, err := c.ch.ClientSend(op, c.dbID, 0, entity, true)
	if err != nil {
		return wire.Header{}, nil, err
	}
	msg, err := c.ch.ClientRecv(slotID)
	if err != nil {
		c.ch.ReleaseSlot(slotID)
		return wire.Header{}, nil, err
	}
	if err := c.ch.ReleaseSlot(slotID); err != nil {
		return wire.Header{}, nil, err
	}
	if msg.Header.Status == wire.StatusException {
		return msg.Header, nil, fmt.Errorf("client: %s: worker exception", op)
	}
	return msg.Header, msg.Body, nil
}

// Open increments the worker's engine reference count, opening the engine
// if this is the first client, per spec §4.3.1.
func (c *Client) Open(path string, column bool, attrCount int32, engineOpts []byte) error {
	args := &wire.OpenArgs{ColumnFlag: 0, AttrCount: attrCount, Path: path}
	if column {
		args.ColumnFlag = 1
	}
	copy(args.EngineOpts[:], engineOpts)
	h, _, err := c.call(wire.OpOpen, args)
	if err != nil {
		return err
	}
	if h.Status != wire.StatusSuccess {
		return fmt.Errorf("client: Open failed")
	}
	return nil
}

// Close decrements the reference count, per spec §4.3.1.
func (c *Client) Close() error {
	h, _, err := c.call(wire.OpClose, nil)
	if err != nil {
		return err
	}
	if h.Status != wire.StatusSuccess {
		return fmt.Errorf("client: Close failed")
	}
	return nil
}

// Count returns engine.count(), per spec §4.3.
func (c *Client) Count() (uint64, error) {
	h, body, err := c.call(wire.OpCount, nil)
	if err != nil {
		return 0, err
	}
	if h.Status != wire.StatusSuccess {
		return 0, fmt.Errorf("client: Count failed")
	}
	result, err := wire.DecodeCountResult(body)
	if err != nil {
		return 0, err
	}
	return result.Count, nil
}

// Put writes a key/value pair.
func (c *Client) Put(key, value []byte) error {
	h, _, err := c.call(wire.OpPut, &wire.PutArgs{Key: key, Value: value})
	if err != nil {
		return err
	}
	if h.Status != wire.StatusSuccess {
		return fmt.Errorf("client: Put failed")
	}
	return nil
}

// Load is a fire-and-forget bulk-load Put, per spec §6; it does not wait
// for or report a response.
func (c *Client) Load(key, value []byte) error {
	_, err := c.ch.ClientSend(wire.OpLoad, c.dbID, 0, &wire.PutArgs{Key: key, Value: value}, false)
	return err
}

// Get returns the value for key, per spec §4.3's hit/miss framing: ok is
// false on a miss (StatusFailure), not an error.
func (c *Client) Get(key []byte) (value []byte, ok bool, err error) {
	h, body, err := c.call(wire.OpGet, &wire.KeyArgs{Key: key})
	if err != nil {
		return nil, false, err
	}
	if h.Status == wire.StatusFailure {
		return nil, false, nil
	}
	return body, true, nil
}

// Delete removes key, returning whether it existed.
func (c *Client) Delete(key []byte) (existed bool, err error) {
	h, _, err := c.call(wire.OpDel, &wire.KeyArgs{Key: key})
	if err != nil {
		return false, err
	}
	return h.Status == wire.StatusSuccess, nil
}

func (c *Client) newCursorKey() wire.CursorKey {
	return wire.CursorKey{ClientPID: c.pid, CursorID: c.nextCursorID.Add(1)}
}
