package client

import (
	"fmt"

	"github.com/dkvbridge/dkvbridge/internal/bulk"
	"github.com/dkvbridge/dkvbridge/internal/wire"
)

// RangeQuery is a bounded-range scan handle opened by OpenRangeQuery, per
// spec §4.3/§6: the first RangeQuery request carries the range bounds and
// options; every later call for the same cursor sends only the CursorKey
// prefix, per spec §6 "range payload ... present only on the first call".
type RangeQuery struct {
	c       *Client
	key     wire.CursorKey
	name    string
	started bool
}

// OpenRangeQuery allocates a fresh cursor key for a range scan.
func (c *Client) OpenRangeQuery() *RangeQuery {
	key := c.newCursorKey()
	return &RangeQuery{c: c, key: key, name: bulk.RangeQueryName(key.ClientPID, c.workerID, key.CursorID)}
}

// Start issues the first RangeQuery request, carrying the scan bounds,
// batch capacity, and (for column-store engines) the projected attributes,
// per spec §6.
func (rq *RangeQuery) Start(start, limit []byte, batchCapacity uint64, attrs []int32) ([]wire.BatchEntry, bool, error) {
	if rq.started {
		return nil, false, fmt.Errorf("client: RangeQuery already started")
	}
	rq.started = true
	args := &wire.RangeQueryArgs{
		CursorKey:       rq.key,
		HasRangeOptions: true,
		Start:           start,
		Limit:           limit,
		BatchCapacity:   batchCapacity,
		AttrCount:       int32(len(attrs)),
		Attrs:           attrs,
	}
	return rq.call(args)
}

// Next pulls the next batch for an already-started range scan.
func (rq *RangeQuery) Next() ([]wire.BatchEntry, bool, error) {
	if !rq.started {
		return nil, false, fmt.Errorf("client: RangeQuery not started")
	}
	args := &wire.RangeQueryArgs{CursorKey: rq.key, HasRangeOptions: false}
	return rq.call(args)
}

func (rq *RangeQuery) call(args *wire.RangeQueryArgs) ([]wire.BatchEntry, bool, error) {
	h, body, err := rq.c.call(wire.OpRangeQuery, args)
	if err != nil {
		return nil, false, err
	}
	if h.Status != wire.StatusSuccess {
		return nil, false, fmt.Errorf("client: RangeQuery failed")
	}
	result, err := wire.DecodeReadBatchResult(body)
	if err != nil {
		return nil, false, err
	}
	if result.NBytes == 0 {
		return nil, result.Next, nil
	}

	reader, err := bulk.OpenReader(rq.name, int(result.NBytes))
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

// Close releases the range session on the worker (fire-and-forget, per
// wire.Op.HasResponse) and unlinks its bulk segment.
func (rq *RangeQuery) Close() error {
	key := rq.key
	if _, err := rq.c.ch.ClientSend(wire.OpClearRangeQuery, rq.c.dbID, 0, key, false); err != nil {
		return err
	}
	return bulk.Unlink(rq.name)
}
