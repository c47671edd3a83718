package wire

import (
	"encoding/binary"
	"fmt"
)

// Entity is anything that can be written into a channel arena/slot as a
// message's payload and read back out, per spec §4.2.3 ("payloads are
// written directly into the arena with a caller-provided writer function").
type Entity interface {
	// Size returns the exact number of bytes Encode will write.
	Size() int
	// Encode writes the entity into dst, which must be at least Size() bytes.
	Encode(dst []byte) (int, error)
}

// EngineOptsSize is the fixed size of the opaque engine configuration blob
// carried by Open requests (spec §6: "engine_opts(fixed)"). The bytes are
// passed through unchanged to the engine collaborator (internal/engine).
const EngineOptsSize = 64

// -----------------------------------------------------------------------
// Open
// -----------------------------------------------------------------------

// OpenArgs is the entity for OpOpen: spec §6 "engine_opts(fixed) ||
// [column_flag(u8) || attr_count(i32)] || path_bytes(rest)".
type OpenArgs struct {
	EngineOpts [EngineOptsSize]byte
	ColumnFlag uint8 // 0 = row-store, 1 = column-store
	AttrCount  int32 // only meaningful when ColumnFlag selects column-store
	Path       string
}

func (a *OpenArgs) Size() int {
	return EngineOptsSize + 1 + 4 + len(a.Path)
}

func (a *OpenArgs) Encode(dst []byte) (int, error) {
	if len(dst) < a.Size() {
		return 0, fmt.Errorf("wire: OpenArgs buffer too small")
	}
	pos := copy(dst, a.EngineOpts[:])
	dst[pos] = a.ColumnFlag
	pos++
	binary.LittleEndian.PutUint32(dst[pos:pos+4], uint32(a.AttrCount))
	pos += 4
	pos += copy(dst[pos:], a.Path)
	return pos, nil
}

// DecodeOpenArgs decodes an OpenArgs from a buffer of exactly entitySize bytes.
func DecodeOpenArgs(src []byte) (OpenArgs, error) {
	if len(src) < EngineOptsSize+5 {
		return OpenArgs{}, NewProtocolError("OpenArgs too short")
	}
	var a OpenArgs
	copy(a.EngineOpts[:], src[:EngineOptsSize])
	pos := EngineOptsSize
	a.ColumnFlag = src[pos]
	pos++
	a.AttrCount = int32(binary.LittleEndian.Uint32(src[pos : pos+4]))
	pos += 4
	a.Path = string(src[pos:])
	return a, nil
}

// -----------------------------------------------------------------------
// Put / Load
// -----------------------------------------------------------------------

// PutArgs is the entity for OpPut and OpLoad: spec §6 "key_len(u64) || key
// || value".
type PutArgs struct {
	Key   []byte
	Value []byte
}

func (a *PutArgs) Size() int {
	return 8 + len(a.Key) + len(a.Value)
}

func (a *PutArgs) Encode(dst []byte) (int, error) {
	if len(dst) < a.Size() {
		return 0, fmt.Errorf("wire: PutArgs buffer too small")
	}
	binary.LittleEndian.PutUint64(dst[0:8], uint64(len(a.Key)))
	pos := 8
	pos += copy(dst[pos:], a.Key)
	pos += copy(dst[pos:], a.Value)
	return pos, nil
}

// DecodePutArgs decodes a PutArgs from a buffer of exactly entitySize bytes.
// The value length is derived from entitySize - 8 - keyLen, per spec §6.
func DecodePutArgs(src []byte) (PutArgs, error) {
	if len(src) < 8 {
		return PutArgs{}, NewProtocolError("PutArgs too short for key_len")
	}
	keyLen := binary.LittleEndian.Uint64(src[0:8])
	if uint64(len(src)-8) < keyLen {
		return PutArgs{}, NewProtocolError("PutArgs key_len exceeds entity size")
	}
	key := append([]byte(nil), src[8:8+keyLen]...)
	value := append([]byte(nil), src[8+keyLen:]...)
	return PutArgs{Key: key, Value: value}, nil
}

// -----------------------------------------------------------------------
// Get / Delete
// -----------------------------------------------------------------------

// KeyArgs is the entity for OpGet and OpDel: spec §6 "raw key bytes (length
// = ety_size)".
type KeyArgs struct {
	Key []byte
}

func (a *KeyArgs) Size() int { return len(a.Key) }

func (a *KeyArgs) Encode(dst []byte) (int, error) {
	if len(dst) < a.Size() {
		return 0, fmt.Errorf("wire: KeyArgs buffer too small")
	}
	return copy(dst, a.Key), nil
}

// DecodeKeyArgs decodes a KeyArgs; the whole buffer is the key.
func DecodeKeyArgs(src []byte) KeyArgs {
	return KeyArgs{Key: append([]byte(nil), src...)}
}

// -----------------------------------------------------------------------
// ReadBatch / CloseCursor
// -----------------------------------------------------------------------

// CursorKey is the entity for OpReadBatch and OpDelCursor: spec §6 "pid(u32)
// || cursor_id(u64)". It also serves as the map key type in internal/worker
// (spec §3: "CursorKey = (client_pid, cursor_id)").
type CursorKey struct {
	ClientPID uint32
	CursorID  uint64
}

const CursorKeySize = 4 + 8

func (k CursorKey) Size() int { return CursorKeySize }

func (k CursorKey) Encode(dst []byte) (int, error) {
	if len(dst) < CursorKeySize {
		return 0, fmt.Errorf("wire: CursorKey buffer too small")
	}
	binary.LittleEndian.PutUint32(dst[0:4], k.ClientPID)
	binary.LittleEndian.PutUint64(dst[4:12], k.CursorID)
	return CursorKeySize, nil
}

// DecodeCursorKey decodes a CursorKey from a buffer of exactly CursorKeySize bytes.
func DecodeCursorKey(src []byte) (CursorKey, error) {
	if len(src) < CursorKeySize {
		return CursorKey{}, NewProtocolError("CursorKey too short")
	}
	return CursorKey{
		ClientPID: binary.LittleEndian.Uint32(src[0:4]),
		CursorID:  binary.LittleEndian.Uint64(src[4:12]),
	}, nil
}

// -----------------------------------------------------------------------
// RangeQuery
// -----------------------------------------------------------------------

// RangeQueryArgs is the entity for OpRangeQuery: spec §6 "pid || cursor_id
// || start_len(u64) || start || limit_len(u64) || limit ||
// batch_capacity(u64) || attr_count(i32) || attrs(i32 × attr_count)". The
// range payload (everything after CursorKey) is present only on the first
// call for a cursor (spec §6); subsequent calls send just the CursorKey
// prefix and HasRangeOptions is false.
type RangeQueryArgs struct {
	CursorKey       CursorKey
	HasRangeOptions bool
	Start           []byte
	Limit           []byte
	BatchCapacity   uint64
	AttrCount       int32
	Attrs           []int32
}

func (a *RangeQueryArgs) Size() int {
	n := CursorKeySize
	if a.HasRangeOptions {
		n += 8 + len(a.Start) + 8 + len(a.Limit) + 8 + 4 + 4*len(a.Attrs)
	}
	return n
}

func (a *RangeQueryArgs) Encode(dst []byte) (int, error) {
	if len(dst) < a.Size() {
		return 0, fmt.Errorf("wire: RangeQueryArgs buffer too small")
	}
	pos, err := a.CursorKey.Encode(dst)
	if err != nil {
		return 0, err
	}
	if !a.HasRangeOptions {
		return pos, nil
	}
	binary.LittleEndian.PutUint64(dst[pos:pos+8], uint64(len(a.Start)))
	pos += 8
	pos += copy(dst[pos:], a.Start)
	binary.LittleEndian.PutUint64(dst[pos:pos+8], uint64(len(a.Limit)))
	pos += 8
	pos += copy(dst[pos:], a.Limit)
	binary.LittleEndian.PutUint64(dst[pos:pos+8], a.BatchCapacity)
	pos += 8
	binary.LittleEndian.PutUint32(dst[pos:pos+4], uint32(a.AttrCount))
	pos += 4
	for _, attr := range a.Attrs {
		binary.LittleEndian.PutUint32(dst[pos:pos+4], uint32(attr))
		pos += 4
	}
	return pos, nil
}

// DecodeRangeQueryArgs decodes a RangeQueryArgs. hasOptions must be supplied
// by the caller (the worker knows from its range-session map whether this
// is the first call for the cursor, per spec §6).
func DecodeRangeQueryArgs(src []byte, hasOptions bool) (RangeQueryArgs, error) {
	key, err := DecodeCursorKey(src)
	if err != nil {
		return RangeQueryArgs{}, err
	}
	a := RangeQueryArgs{CursorKey: key, HasRangeOptions: hasOptions}
	if !hasOptions {
		return a, nil
	}
	pos := CursorKeySize
	readBlob := func() ([]byte, error) {
		if len(src)-pos < 8 {
			return nil, NewProtocolError("RangeQueryArgs truncated length prefix")
		}
		l := binary.LittleEndian.Uint64(src[pos : pos+8])
		pos += 8
		if uint64(len(src)-pos) < l {
			return nil, NewProtocolError("RangeQueryArgs truncated blob")
		}
		b := append([]byte(nil), src[pos:pos+int(l)]...)
		pos += int(l)
		return b, nil
	}
	if a.Start, err = readBlob(); err != nil {
		return RangeQueryArgs{}, err
	}
	if a.Limit, err = readBlob(); err != nil {
		return RangeQueryArgs{}, err
	}
	if len(src)-pos < 12 {
		return RangeQueryArgs{}, NewProtocolError("RangeQueryArgs truncated tail")
	}
	a.BatchCapacity = binary.LittleEndian.Uint64(src[pos : pos+8])
	pos += 8
	a.AttrCount = int32(binary.LittleEndian.Uint32(src[pos : pos+4]))
	pos += 4
	if a.AttrCount > 0 {
		need := int(a.AttrCount) * 4
		if len(src)-pos < need {
			return RangeQueryArgs{}, NewProtocolError("RangeQueryArgs truncated attrs")
		}
		a.Attrs = make([]int32, a.AttrCount)
		for i := range a.Attrs {
			a.Attrs[i] = int32(binary.LittleEndian.Uint32(src[pos : pos+4]))
			pos += 4
		}
	}
	return a, nil
}

// -----------------------------------------------------------------------
// ReadBatch response
// -----------------------------------------------------------------------

// ReadBatchResult is the inline response entity for OpReadBatch and
// OpRangeQuery: spec §6 "next(bool) || size(u64)".
type ReadBatchResult struct {
	Next   bool
	NBytes uint64
}

const ReadBatchResultSize = 1 + 8

func (r ReadBatchResult) Size() int { return ReadBatchResultSize }

func (r ReadBatchResult) Encode(dst []byte) (int, error) {
	if len(dst) < ReadBatchResultSize {
		return 0, fmt.Errorf("wire: ReadBatchResult buffer too small")
	}
	if r.Next {
		dst[0] = 1
	} else {
		dst[0] = 0
	}
	binary.LittleEndian.PutUint64(dst[1:9], r.NBytes)
	return ReadBatchResultSize, nil
}

// DecodeReadBatchResult decodes a ReadBatchResult from a buffer of exactly
// ReadBatchResultSize bytes.
func DecodeReadBatchResult(src []byte) (ReadBatchResult, error) {
	if len(src) < ReadBatchResultSize {
		return ReadBatchResult{}, NewProtocolError("ReadBatchResult too short")
	}
	return ReadBatchResult{
		Next:   src[0] != 0,
		NBytes: binary.LittleEndian.Uint64(src[1:9]),
	}, nil
}

// -----------------------------------------------------------------------
// Get response / raw payloads
// -----------------------------------------------------------------------

// Bytes is a raw byte-run entity, used for Get's response value (spec §6:
// "on hit send value as response entity with success") and anywhere else a
// message's entire body is uninterpreted bytes.
type Bytes []byte

func (b Bytes) Size() int { return len(b) }

func (b Bytes) Encode(dst []byte) (int, error) {
	if len(dst) < len(b) {
		return 0, fmt.Errorf("wire: Bytes buffer too small")
	}
	return copy(dst, b), nil
}

// DecodeBytes decodes a Bytes entity; the whole buffer is the payload.
func DecodeBytes(src []byte) Bytes {
	return Bytes(append([]byte(nil), src...))
}

// -----------------------------------------------------------------------
// Count response
// -----------------------------------------------------------------------

// CountResult is the inline response entity for OpCount: spec §4.3
// "return engine.count() as a 64-bit integer".
type CountResult struct {
	Count uint64
}

const CountResultSize = 8

func (r CountResult) Size() int { return CountResultSize }

func (r CountResult) Encode(dst []byte) (int, error) {
	if len(dst) < CountResultSize {
		return 0, fmt.Errorf("wire: CountResult buffer too small")
	}
	binary.LittleEndian.PutUint64(dst[0:8], r.Count)
	return CountResultSize, nil
}

// DecodeCountResult decodes a CountResult from a buffer of exactly
// CountResultSize bytes.
func DecodeCountResult(src []byte) (CountResult, error) {
	if len(src) < CountResultSize {
		return CountResult{}, NewProtocolError("CountResult too short")
	}
	return CountResult{Count: binary.LittleEndian.Uint64(src[0:8])}, nil
}

// NewProtocolError is a convenience constructor mirroring shm.NewError for
// wire-layer decode failures, kept dependency-free of internal/shm so the
// codec package has no cgo dependency of its own.
func NewProtocolError(msg string) error {
	return &ProtocolError{Msg: msg}
}

// ProtocolError marks a codec-level violation (spec §7 ProtocolViolation):
// unknown op, short buffer, or size mismatch.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "wire: protocol violation: " + e.Msg }
