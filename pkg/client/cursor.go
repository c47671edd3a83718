package client

import (
	"fmt"

	"github.com/dkvbridge/dkvbridge/internal/bulk"
	"github.com/dkvbridge/dkvbridge/internal/wire"
)

// Cursor is a forward-scan handle opened by OpenCursor, per spec §4.3/§4.4:
// each ReadBatch call pulls the next chunk of key/value pairs through the
// bulk segment named for this cursor, until Next is false.
type Cursor struct {
	c    *Client
	key  wire.CursorKey
	name string
}

// OpenCursor allocates a fresh cursor key scoped to this client's pid, per
// spec §6 "CursorKey = (client_pid, cursor_id)". The engine only creates the
// underlying iterator lazily, on the first ReadBatch (see internal/worker).
func (c *Client) OpenCursor() *Cursor {
	key := c.newCursorKey()
	return &Cursor{c: c, key: key, name: bulk.ReadBatchName(key.ClientPID, c.workerID, key.CursorID)}
}

// ReadBatch pulls the next chunk of entries, per spec §4.4: send the
// CursorKey, get back (next, size) inline, then open and decode the bulk
// segment the worker just wrote.
func (cur *Cursor) ReadBatch() ([]wire.BatchEntry, bool, error) {
	h, body, err := cur.c.call(wire.OpReadBatch, cur.key)
	if err != nil {
		return nil, false, err
	}
	if h.Status != wire.StatusSuccess {
		return nil, false, fmt.Errorf("client: ReadBatch failed")
	}
	result, err := wire.DecodeReadBatchResult(body)
	if err != nil {
		return nil, false, err
	}
	if result.NBytes == 0 {
		return nil, result.Next, nil
	}

	reader, err := bulk.OpenReader(cur.name, int(result.NBytes))
	if err != nil {
		return nil, false, fmt.Errorf("client: open bulk segment: %w", err)
	}
	defer reader.Close()

	entries, err := wire.DecodeBatch(reader.Bytes(), int(result.NBytes))
	if err != nil {
		return nil, false, err
	}
	return entries, result.Next, nil
}

// Close releases the cursor's iterator on the worker and unlinks its bulk
// segment, per spec §4.4 client step 4.
func (cur *Cursor) Close() error {
	if _, _, err := cur.c.call(wire.OpDelCursor, cur.key); err != nil {
		return err
	}
	return bulk.Unlink(cur.name)
}
