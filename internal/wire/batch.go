package wire

import "encoding/binary"

// BatchEntry is one key/value pair inside a bulk-segment batch (spec §4.4:
// "the worker ... writes the serialized batch"; §4.4 client: "Consumes the
// batch (decoding is the engine collaborator's concern)"). The layout is
// shared between the worker's engine (encoder) and the client (decoder) so
// both sides agree on it without negotiating anything over the wire beyond
// the segment name.
type BatchEntry struct {
	Key   []byte
	Value []byte
}

// EncodedSize returns the number of bytes e occupies once encoded:
// key_len(u32) || key || value_len(u32) || value.
func (e BatchEntry) EncodedSize() int {
	return 4 + len(e.Key) + 4 + len(e.Value)
}

// EncodeBatchEntry writes e into dst, returning the number of bytes
// written, or an error if dst is too small.
func EncodeBatchEntry(dst []byte, e BatchEntry) (int, error) {
	need := e.EncodedSize()
	if len(dst) < need {
		return 0, NewProtocolError("batch entry buffer too small")
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(len(e.Key)))
	pos := 4
	pos += copy(dst[pos:], e.Key)
	binary.LittleEndian.PutUint32(dst[pos:pos+4], uint32(len(e.Value)))
	pos += 4
	pos += copy(dst[pos:], e.Value)
	return pos, nil
}

// DecodeBatch decodes every entry packed into src[:n], per EncodeBatchEntry's
// layout. n is the exact byte count the worker reported via
// ReadBatchResult.NBytes; trailing bytes beyond n (segment slack) are never
// interpreted.
func DecodeBatch(src []byte, n int) ([]BatchEntry, error) {
	if n < 0 || n > len(src) {
		return nil, NewProtocolError("batch decode: n out of range")
	}
	buf := src[:n]
	var entries []BatchEntry
	pos := 0
	for pos < len(buf) {
		if len(buf)-pos < 4 {
			return nil, NewProtocolError("batch decode: truncated key_len")
		}
		klen := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
		pos += 4
		if len(buf)-pos < klen {
			return nil, NewProtocolError("batch decode: truncated key")
		}
		key := append([]byte(nil), buf[pos:pos+klen]...)
		pos += klen
		if len(buf)-pos < 4 {
			return nil, NewProtocolError("batch decode: truncated value_len")
		}
		vlen := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
		pos += 4
		if len(buf)-pos < vlen {
			return nil, NewProtocolError("batch decode: truncated value")
		}
		value := append([]byte(nil), buf[pos:pos+vlen]...)
		pos += vlen
		entries = append(entries, BatchEntry{Key: key, Value: value})
	}
	return entries, nil
}
