package worker

import (
	"os"
	"testing"

	"github.com/dkvbridge/dkvbridge/internal/bulk"
	"github.com/dkvbridge/dkvbridge/internal/engine/memengine"
	"github.com/dkvbridge/dkvbridge/internal/wire"
)

func requireShm(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/shm"); err != nil {
		t.Skip("/dev/shm not available on this platform")
	}
}

func newTestState(t *testing.T) *State {
	t.Helper()
	eng := memengine.New()
	s := New(1, 1, nil, eng)
	return s
}

func mustEncode(t *testing.T, e wire.Entity) []byte {
	t.Helper()
	buf := make([]byte, e.Size())
	if _, err := e.Encode(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf
}

func encodeCursorKey(t *testing.T, k wire.CursorKey) []byte {
	t.Helper()
	buf := make([]byte, wire.CursorKeySize)
	if _, err := k.Encode(buf); err != nil {
		t.Fatalf("encode cursor key: %v", err)
	}
	return buf
}

func TestOpenCloseRefCounting(t *testing.T) {
	s := newTestState(t)
	openArgs := &wire.OpenArgs{Path: "mem"}
	status, _, err := s.dispatch(Message{Header: wire.Header{Op: wire.OpOpen}, Body: mustEncode(t, openArgs)})
	if err != nil || status != wire.StatusSuccess {
		t.Fatalf("Open: status=%v err=%v", status, err)
	}
	if s.RefCount() != 1 || !s.EngineOpen() {
		t.Fatalf("Open: refcount=%d open=%v", s.RefCount(), s.EngineOpen())
	}

	status, _, err = s.dispatch(Message{Header: wire.Header{Op: wire.OpOpen}, Body: mustEncode(t, openArgs)})
	if err != nil || status != wire.StatusSuccess {
		t.Fatalf("Open 2: status=%v err=%v", status, err)
	}
	if s.RefCount() != 2 {
		t.Fatalf("Open 2: refcount=%d", s.RefCount())
	}

	status, _, err = s.dispatch(Message{Header: wire.Header{Op: wire.OpClose}})
	if err != nil || status != wire.StatusSuccess {
		t.Fatalf("Close: status=%v err=%v", status, err)
	}
	if s.RefCount() != 1 {
		t.Fatalf("Close: refcount=%d", s.RefCount())
	}
	if !s.EngineOpen() {
		t.Fatal("engine should remain open until Terminate, not at ref_count>0")
	}
}

func TestCloseWithZeroRefCountFails(t *testing.T) {
	s := newTestState(t)
	status, _, err := s.dispatch(Message{Header: wire.Header{Op: wire.OpClose}})
	if err == nil {
		t.Fatal("expected error")
	}
	if status != wire.StatusFailure {
		t.Fatalf("got status %v", status)
	}
}

func TestPutGetDeleteRoundtrip(t *testing.T) {
	s := newTestState(t)
	openArgs := &wire.OpenArgs{Path: "mem"}
	s.dispatch(Message{Header: wire.Header{Op: wire.OpOpen}, Body: mustEncode(t, openArgs)})

	putArgs := &wire.PutArgs{Key: []byte("k1"), Value: []byte("v1")}
	status, _, err := s.dispatch(Message{Header: wire.Header{Op: wire.OpPut}, Body: mustEncode(t, putArgs)})
	if err != nil || status != wire.StatusSuccess {
		t.Fatalf("Put: status=%v err=%v", status, err)
	}

	status, resp, err := s.dispatch(Message{Header: wire.Header{Op: wire.OpGet}, Body: []byte("k1")})
	if err != nil || status != wire.StatusSuccess {
		t.Fatalf("Get: status=%v err=%v", status, err)
	}
	if string(resp.(wire.Bytes)) != "v1" {
		t.Fatalf("Get: got %q", resp)
	}

	status, _, err = s.dispatch(Message{Header: wire.Header{Op: wire.OpGet}, Body: []byte("missing")})
	if err != nil {
		t.Fatalf("Get miss: err=%v", err)
	}
	if status != wire.StatusFailure {
		t.Fatalf("Get miss: got status %v", status)
	}

	status, _, err = s.dispatch(Message{Header: wire.Header{Op: wire.OpDel}, Body: []byte("k1")})
	if err != nil || status != wire.StatusSuccess {
		t.Fatalf("Delete: status=%v err=%v", status, err)
	}

	status, _, err = s.dispatch(Message{Header: wire.Header{Op: wire.OpDel}, Body: []byte("k1")})
	if err != nil {
		t.Fatalf("Delete miss: err=%v", err)
	}
	if status != wire.StatusFailure {
		t.Fatalf("Delete miss: got status %v", status)
	}
}

func TestCountReflectsPuts(t *testing.T) {
	s := newTestState(t)
	s.dispatch(Message{Header: wire.Header{Op: wire.OpOpen}, Body: mustEncode(t, &wire.OpenArgs{Path: "mem"})})
	for _, k := range []string{"a", "b", "c"} {
		s.dispatch(Message{Header: wire.Header{Op: wire.OpPut}, Body: mustEncode(t, &wire.PutArgs{Key: []byte(k), Value: []byte("x")})})
	}
	status, resp, err := s.dispatch(Message{Header: wire.Header{Op: wire.OpCount}})
	if err != nil || status != wire.StatusSuccess {
		t.Fatalf("Count: status=%v err=%v", status, err)
	}
	if resp.(wire.CountResult).Count != 3 {
		t.Fatalf("Count: got %d", resp.(wire.CountResult).Count)
	}
}

func TestReadBatchCoversAllKeysAndClosesCursor(t *testing.T) {
	requireShm(t)
	s := newTestState(t)
	s.dispatch(Message{Header: wire.Header{Op: wire.OpOpen}, Body: mustEncode(t, &wire.OpenArgs{Path: "mem"})})
	for i := 0; i < 20; i++ {
		k := []byte{byte('a' + i)}
		s.dispatch(Message{Header: wire.Header{Op: wire.OpPut}, Body: mustEncode(t, &wire.PutArgs{Key: k, Value: []byte("v")})})
	}

	key := wire.CursorKey{ClientPID: uint32(os.Getpid()), CursorID: 1}
	body := encodeCursorKey(t, key)

	seen := 0
	for {
		status, resp, err := s.dispatch(Message{Header: wire.Header{Op: wire.OpReadBatch}, Body: body})
		if err != nil || status != wire.StatusSuccess {
			t.Fatalf("ReadBatch: status=%v err=%v", status, err)
		}
		result := resp.(wire.ReadBatchResult)
		name := bulk.ReadBatchName(key.ClientPID, s.WorkerID, key.CursorID)
		r, err := bulk.OpenReader(name, int(result.NBytes))
		if err != nil {
			t.Fatalf("OpenReader: %v", err)
		}
		entries, err := wire.DecodeBatch(r.Bytes()[:result.NBytes], int(result.NBytes))
		if err != nil {
			t.Fatalf("DecodeBatch: %v", err)
		}
		seen += len(entries)
		r.Close()
		bulk.Unlink(name)
		if !result.Next {
			break
		}
	}
	if seen != 20 {
		t.Fatalf("saw %d entries, want 20", seen)
	}
	if s.CursorCount() != 0 {
		t.Fatalf("cursor not cleaned up on exhaustion: %d remain", s.CursorCount())
	}
}

func TestRangeQuerySessionLifecycle(t *testing.T) {
	requireShm(t)
	s := newTestState(t)
	s.dispatch(Message{Header: wire.Header{Op: wire.OpOpen}, Body: mustEncode(t, &wire.OpenArgs{Path: "mem"})})
	for _, k := range []string{"k0", "k1", "k2", "k3", "k4"} {
		s.dispatch(Message{Header: wire.Header{Op: wire.OpPut}, Body: mustEncode(t, &wire.PutArgs{Key: []byte(k), Value: []byte("v")})})
	}

	key := wire.CursorKey{ClientPID: uint32(os.Getpid()), CursorID: 42}
	args := &wire.RangeQueryArgs{
		CursorKey:       key,
		HasRangeOptions: true,
		Start:           []byte("k1"),
		Limit:           []byte("k3"),
		BatchCapacity:   4096,
	}
	status, resp, err := s.dispatch(Message{Header: wire.Header{Op: wire.OpRangeQuery}, Body: mustEncode(t, args)})
	if err != nil || status != wire.StatusSuccess {
		t.Fatalf("RangeQuery: status=%v err=%v", status, err)
	}
	result := resp.(wire.ReadBatchResult)
	name := bulk.RangeQueryName(key.ClientPID, s.WorkerID, key.CursorID)
	r, err := bulk.OpenReader(name, int(result.NBytes))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	entries, err := wire.DecodeBatch(r.Bytes()[:result.NBytes], int(result.NBytes))
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	r.Close()
	bulk.Unlink(name)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3 (k1,k2,k3)", len(entries))
	}
	if !result.Next {
		if s.RangeSessionCount() != 0 {
			t.Fatalf("session should have been cleared on exhaustion")
		}
	}

	// A subsequent call for the same CursorKey must not require options again.
	prefixOnly := encodeCursorKey(t, key)
	if s.RangeSessionCount() > 0 {
		status, _, err = s.dispatch(Message{Header: wire.Header{Op: wire.OpRangeQuery}, Body: prefixOnly})
		if err != nil || status != wire.StatusSuccess {
			t.Fatalf("RangeQuery continuation: status=%v err=%v", status, err)
		}
	}
}

// TestReadBatchOnEmptyStoreDoesNotCreateSegment guards against mmap
// rejecting a zero-length mapping: a ReadBatch against an engine with no
// data must come back as an inline (next=false, size=0) response, never
// try to create a bulk segment.
func TestReadBatchOnEmptyStoreDoesNotCreateSegment(t *testing.T) {
	requireShm(t)
	s := newTestState(t)
	s.dispatch(Message{Header: wire.Header{Op: wire.OpOpen}, Body: mustEncode(t, &wire.OpenArgs{Path: "mem"})})

	key := wire.CursorKey{ClientPID: uint32(os.Getpid()), CursorID: 99}
	body := encodeCursorKey(t, key)
	status, resp, err := s.dispatch(Message{Header: wire.Header{Op: wire.OpReadBatch}, Body: body})
	if err != nil || status != wire.StatusSuccess {
		t.Fatalf("ReadBatch on empty store: status=%v err=%v", status, err)
	}
	result := resp.(wire.ReadBatchResult)
	if result.Next || result.NBytes != 0 {
		t.Fatalf("ReadBatch on empty store: got %+v, want next=false size=0", result)
	}

	name := bulk.ReadBatchName(key.ClientPID, s.WorkerID, key.CursorID)
	if _, err := bulk.OpenReader(name, 1); err == nil {
		t.Fatal("bulk segment should not have been created for an empty batch")
	}
}

// TestRangeQueryOnEmptyStoreDoesNotCreateSegment mirrors the ReadBatch
// case for RangeQuery against a range with no matching entries.
func TestRangeQueryOnEmptyStoreDoesNotCreateSegment(t *testing.T) {
	requireShm(t)
	s := newTestState(t)
	s.dispatch(Message{Header: wire.Header{Op: wire.OpOpen}, Body: mustEncode(t, &wire.OpenArgs{Path: "mem"})})

	key := wire.CursorKey{ClientPID: uint32(os.Getpid()), CursorID: 100}
	args := &wire.RangeQueryArgs{CursorKey: key, HasRangeOptions: true, Start: []byte("z0"), Limit: []byte("z9"), BatchCapacity: 4096}
	status, resp, err := s.dispatch(Message{Header: wire.Header{Op: wire.OpRangeQuery}, Body: mustEncode(t, args)})
	if err != nil || status != wire.StatusSuccess {
		t.Fatalf("RangeQuery on empty range: status=%v err=%v", status, err)
	}
	result := resp.(wire.ReadBatchResult)
	if result.Next || result.NBytes != 0 {
		t.Fatalf("RangeQuery on empty range: got %+v, want next=false size=0", result)
	}

	name := bulk.RangeQueryName(key.ClientPID, s.WorkerID, key.CursorID)
	if _, err := bulk.OpenReader(name, 1); err == nil {
		t.Fatal("bulk segment should not have been created for an empty range batch")
	}
}

// TestReadBatchSegmentIsFixedSize verifies the ReadBatch segment is always
// created at the configured READBATCHSIZE, not shrunk to the bytes
// actually written this round, per spec §3/§6.
func TestReadBatchSegmentIsFixedSize(t *testing.T) {
	requireShm(t)
	s := newTestState(t)
	s.SetReadBatchSize(4096)
	s.dispatch(Message{Header: wire.Header{Op: wire.OpOpen}, Body: mustEncode(t, &wire.OpenArgs{Path: "mem"})})
	s.dispatch(Message{Header: wire.Header{Op: wire.OpPut}, Body: mustEncode(t, &wire.PutArgs{Key: []byte("a"), Value: []byte("v")})})

	key := wire.CursorKey{ClientPID: uint32(os.Getpid()), CursorID: 101}
	body := encodeCursorKey(t, key)
	status, resp, err := s.dispatch(Message{Header: wire.Header{Op: wire.OpReadBatch}, Body: body})
	if err != nil || status != wire.StatusSuccess {
		t.Fatalf("ReadBatch: status=%v err=%v", status, err)
	}
	result := resp.(wire.ReadBatchResult)

	name := bulk.ReadBatchName(key.ClientPID, s.WorkerID, key.CursorID)
	// The segment was created at the fixed 4096-byte size; opening it at
	// that size (larger than NBytes) must succeed.
	r, err := bulk.OpenReader(name, 4096)
	if err != nil {
		t.Fatalf("segment was not created at the fixed READBATCHSIZE: %v", err)
	}
	r.Close()
	bulk.Unlink(name)
	if result.NBytes == 0 || result.NBytes >= 4096 {
		t.Fatalf("NBytes = %d, want a small exact count distinct from the segment size", result.NBytes)
	}
}

func TestClearRangeQueryReleasesSession(t *testing.T) {
	requireShm(t)
	s := newTestState(t)
	s.dispatch(Message{Header: wire.Header{Op: wire.OpOpen}, Body: mustEncode(t, &wire.OpenArgs{Path: "mem"})})
	s.dispatch(Message{Header: wire.Header{Op: wire.OpPut}, Body: mustEncode(t, &wire.PutArgs{Key: []byte("a"), Value: []byte("v")})})
	s.dispatch(Message{Header: wire.Header{Op: wire.OpPut}, Body: mustEncode(t, &wire.PutArgs{Key: []byte("b"), Value: []byte("v")})})

	// Each entry encodes to 10 bytes, so a 10-byte capacity returns "a"
	// alone and leaves the session open for "b".
	key := wire.CursorKey{ClientPID: uint32(os.Getpid()), CursorID: 7}
	args := &wire.RangeQueryArgs{CursorKey: key, HasRangeOptions: true, BatchCapacity: 10}
	s.dispatch(Message{Header: wire.Header{Op: wire.OpRangeQuery}, Body: mustEncode(t, args)})
	if s.RangeSessionCount() == 0 {
		t.Skip("range exhausted in a single batch; nothing to clear early")
	}

	body := encodeCursorKey(t, key)
	status, _, err := s.dispatch(Message{Header: wire.Header{Op: wire.OpClearRangeQuery}, Body: body})
	if err != nil || status != wire.StatusSuccess {
		t.Fatalf("ClearRangeQuery: status=%v err=%v", status, err)
	}
	if s.RangeSessionCount() != 0 {
		t.Fatalf("session not released")
	}
}
