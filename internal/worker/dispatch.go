package worker

import (
	"context"
	"errors"
	"time"

	"github.com/dkvbridge/dkvbridge/internal/engine"
	"github.com/dkvbridge/dkvbridge/internal/ipc"
	"github.com/dkvbridge/dkvbridge/internal/metrics"
	"github.com/dkvbridge/dkvbridge/internal/wire"
)

// Message is the ipc-decoded request this package dispatches on.
type Message = ipc.Message

// Run enters the dispatch loop: receive a request off the arena, handle it,
// send a response (if any) into the leased slot, repeat, per spec §4.2/§5
// ("single-threaded dispatch loop, no locking"). Run returns when ctx is
// canceled or the worker receives Terminate.
func (s *State) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := s.ch.WorkerRecvRequest()
		if err != nil {
			return err
		}
		start := time.Now()
		metrics.RequestReceived(msg.Header.Op)

		if msg.Header.Op == wire.OpTerminate {
			s.log.Infof("received Terminate")
			s.shutdown()
			return nil
		}

		opLog := s.log.WithFields("op", msg.Header.Op)
		status, respEntity, respErr := s.dispatch(msg)
		if respErr != nil {
			opLog.Warningf("dispatch failed: %v", respErr)
		}
		metrics.ResponseSent(msg.Header.Op, status)
		metrics.DispatchLatency(msg.Header.Op, time.Since(start).Seconds())
		metrics.ActiveCursors(s.WorkerID, s.CursorCount())
		metrics.ActiveRangeSessions(s.WorkerID, s.RangeSessionCount())

		if !msg.Header.Op.HasResponse() {
			continue
		}
		slotID := int(msg.Header.ResponseChannelID)
		respHeader := wire.Header{
			Op:     msg.Header.Op,
			DBId:   msg.Header.DBId,
			RelId:  msg.Header.RelId,
			Status: status,
		}
		if err := s.ch.WorkerSendResponse(slotID, respHeader, respEntity); err != nil {
			opLog.Errorf("send response: %v", err)
		}
	}
}

// dispatch handles one request's body and returns the response status and
// entity. It never returns an error that should abort the loop; all engine
// and protocol failures are reported via Status/err for logging only.
func (s *State) dispatch(msg Message) (wire.Status, wire.Entity, error) {
	switch msg.Header.Op {
	case wire.OpOpen:
		return s.handleOpen(msg)
	case wire.OpClose:
		return s.handleClose(msg)
	case wire.OpCount:
		return s.handleCount(msg)
	case wire.OpPut:
		return s.handlePut(msg)
	case wire.OpLoad:
		return s.handleLoad(msg)
	case wire.OpGet:
		return s.handleGet(msg)
	case wire.OpDel:
		return s.handleDelete(msg)
	case wire.OpReadBatch:
		return s.handleReadBatch(msg)
	case wire.OpDelCursor:
		return s.handleDelCursor(msg)
	case wire.OpRangeQuery:
		return s.handleRangeQuery(msg)
	case wire.OpClearRangeQuery:
		return s.handleClearRangeQuery(msg)
	default:
		return wire.StatusException, nil, wire.NewProtocolError("unknown op")
	}
}

func (s *State) handleOpen(msg Message) (wire.Status, wire.Entity, error) {
	args, err := wire.DecodeOpenArgs(msg.Body)
	if err != nil {
		return wire.StatusException, nil, err
	}
	if !s.engineOpen {
		// The engine is normally already open by the time any client Open
		// arrives: the worker process opens it once at startup from its
		// Launch-supplied path/options (see cmd/worker), and ref_count only
		// tracks concurrent client sessions from there. This branch exists
		// for a client that races ahead of that bootstrap, or a bare-bones
		// worker started without one.
		opts := engine.Options{
			Opts:        append([]byte(nil), args.EngineOpts[:]...),
			ColumnStore: args.ColumnFlag != 0,
			AttrCount:   args.AttrCount,
		}
		if err := s.eng.Open(context.Background(), args.Path, opts); err != nil {
			return wire.StatusFailure, nil, err
		}
		s.engineOpen = true
	}
	s.refCount++
	return wire.StatusSuccess, nil, nil
}

func (s *State) handleClose(msg Message) (wire.Status, wire.Entity, error) {
	if s.refCount == 0 {
		return wire.StatusFailure, nil, errors.New("worker: Close with zero ref count")
	}
	s.refCount--
	// The engine handle intentionally stays open even at ref_count == 0
	// (see DESIGN.md): only Terminate closes it, since a new Open racing
	// in right after the last Close would otherwise pay a needless
	// reopen. This mirrors spec §4.3.1's ref-counting without over-reading
	// "release resources" as "close immediately".
	return wire.StatusSuccess, nil, nil
}

func (s *State) handleCount(msg Message) (wire.Status, wire.Entity, error) {
	n, err := s.eng.Count()
	if err != nil {
		return wire.StatusException, nil, err
	}
	return wire.StatusSuccess, wire.CountResult{Count: n}, nil
}

func (s *State) handlePut(msg Message) (wire.Status, wire.Entity, error) {
	args, err := wire.DecodePutArgs(msg.Body)
	if err != nil {
		return wire.StatusException, nil, err
	}
	if err := s.eng.Put(args.Key, args.Value); err != nil {
		return wire.StatusFailure, nil, err
	}
	return wire.StatusSuccess, nil, nil
}

// handleLoad is fire-and-forget (no response), per spec §6 bulk-load path.
func (s *State) handleLoad(msg Message) (wire.Status, wire.Entity, error) {
	args, err := wire.DecodePutArgs(msg.Body)
	if err != nil {
		return wire.StatusException, nil, err
	}
	if err := s.eng.Put(args.Key, args.Value); err != nil {
		return wire.StatusFailure, nil, err
	}
	return wire.StatusSuccess, nil, nil
}

func (s *State) handleGet(msg Message) (wire.Status, wire.Entity, error) {
	key := wire.DecodeKeyArgs(msg.Body)
	value, ok, err := s.eng.Get(key.Key)
	if err != nil {
		return wire.StatusException, nil, err
	}
	if !ok {
		return wire.StatusFailure, nil, nil
	}
	return wire.StatusSuccess, wire.DecodeBytes(value), nil
}

// handleDelete mirrors Get's hit/miss framing: success only when the key
// existed and was removed, failure on miss (spec §4.3 Get symmetry).
func (s *State) handleDelete(msg Message) (wire.Status, wire.Entity, error) {
	key := wire.DecodeKeyArgs(msg.Body)
	existed, err := s.eng.Delete(key.Key)
	if err != nil {
		return wire.StatusException, nil, err
	}
	if !existed {
		return wire.StatusFailure, nil, nil
	}
	return wire.StatusSuccess, nil, nil
}
