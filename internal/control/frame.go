package control

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
)

// writeFrame writes one length-prefixed JSON message, per spec's shape of
// the teacher's rpc/transport/base writeFrame but dropping the shardID
// field, since the control plane has no notion of shards to route to.
//
// Format: 8 bytes requestID (big endian) || 4 bytes length (big endian) ||
// N bytes JSON payload.
func writeFrame(conn net.Conn, requestID uint64, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	header := make([]byte, 12)
	binary.BigEndian.PutUint64(header[0:8], requestID)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(payload)))
	b := net.Buffers{header, payload}
	_, err = b.WriteTo(conn)
	return err
}

// readFrame reads one length-prefixed JSON message.
func readFrame(conn net.Conn) (uint64, Message, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(conn, header); err != nil {
		return 0, Message{}, err
	}
	requestID := binary.BigEndian.Uint64(header[0:8])
	length := binary.BigEndian.Uint32(header[8:12])
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(conn, payload); err != nil {
			return 0, Message{}, err
		}
	}
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return 0, Message{}, err
	}
	return requestID, msg, nil
}
