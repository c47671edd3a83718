package ipc

import (
	"github.com/dkvbridge/dkvbridge/internal/wire"
)

// Message is a decoded header plus its raw, still-undecoded entity bytes.
// Callers know the entity's concrete type from header.Op and call the
// matching wire.DecodeXxx themselves; ipc does not know the per-op codecs.
type Message struct {
	Header wire.Header
	Body   []byte
}

// writeMessage encodes header+entity into dst (an arena or slot region),
// per spec §4.2.3 ("payloads are written directly ... with a caller-provided
// writer function"). entity may be nil for fixed empty-body ops.
func writeMessage(dst []byte, h wire.Header, entity wire.Entity) error {
	if err := h.Encode(dst); err != nil {
		return err
	}
	if entity == nil {
		return nil
	}
	n, err := entity.Encode(dst[wire.HeaderSize:])
	if err != nil {
		return err
	}
	if uint64(n) != h.EntitySize {
		return wire.NewProtocolError("encoded entity size does not match header")
	}
	return nil
}

// readMessage decodes a header and copies out exactly its entity's bytes
// from src (an arena or slot region already known to hold a live message).
func readMessage(src []byte) (Message, error) {
	h, err := wire.DecodeHeader(src)
	if err != nil {
		return Message{}, err
	}
	rest := src[wire.HeaderSize:]
	if uint64(len(rest)) < h.EntitySize {
		return Message{}, wire.NewProtocolError("region too small for entity_size in header")
	}
	body := append([]byte(nil), rest[:h.EntitySize]...)
	return Message{Header: h, Body: body}, nil
}
