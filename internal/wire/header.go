package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed, packed size of a Header on the wire, per
// spec §6 "Wire header": five uint32 fields plus one uint64 field.
const HeaderSize = 4*5 + 8

// Header is the fixed-size envelope that precedes every message's entity,
// bit-exact per spec §6. Endianness is native to the host; since this IPC
// is intra-host only (spec §6), we fix it to little-endian rather than
// truly "native", the same way the teacher's binary serializer picks one
// consistent byte order (there BigEndian) instead of runtime-detecting it.
type Header struct {
	Op                Op
	DBId              uint32
	RelId             uint32
	Status            Status
	ResponseChannelID uint32
	EntitySize        uint64
}

// Encode writes h into dst, which must be at least HeaderSize bytes.
func (h *Header) Encode(dst []byte) error {
	if len(dst) < HeaderSize {
		return fmt.Errorf("wire: header buffer too small: %d < %d", len(dst), HeaderSize)
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(h.Op))
	binary.LittleEndian.PutUint32(dst[4:8], h.DBId)
	binary.LittleEndian.PutUint32(dst[8:12], h.RelId)
	binary.LittleEndian.PutUint32(dst[12:16], uint32(h.Status))
	binary.LittleEndian.PutUint32(dst[16:20], h.ResponseChannelID)
	binary.LittleEndian.PutUint64(dst[20:28], h.EntitySize)
	return nil
}

// DecodeHeader reads a Header from src, which must be at least HeaderSize bytes.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, fmt.Errorf("wire: header buffer too small: %d < %d", len(src), HeaderSize)
	}
	return Header{
		Op:                Op(binary.LittleEndian.Uint32(src[0:4])),
		DBId:              binary.LittleEndian.Uint32(src[4:8]),
		RelId:             binary.LittleEndian.Uint32(src[8:12]),
		Status:            Status(binary.LittleEndian.Uint32(src[12:16])),
		ResponseChannelID: binary.LittleEndian.Uint32(src[16:20]),
		EntitySize:        binary.LittleEndian.Uint64(src[20:28]),
	}, nil
}
