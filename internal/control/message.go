// Package control implements the manager's control-plane protocol: Launch,
// Terminate, and WorkerReady, exchanged over a single unix-domain-socket
// connection, per spec §4.5/§1 Non-goal "Network transport" (only a
// host-local transport is exposed). The message shape and JSON-over-frame
// convention are grounded on the teacher's rpc/common/proto.go Message/
// MessageType pattern; the framing is grounded on rpc/transport/base's
// length-prefixed writeFrame/readFrame, simplified to one connection
// (the manager is a singleton control endpoint, not a sharded RSM cluster,
// so the base transport's round-robin connection pool and per-shard
// routing have nothing to serve here).
package control

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies a control-plane message, mirroring the teacher's
// MessageType convention of readable JSON over raw integers.
type MessageType uint8

const (
	MsgTUnknown MessageType = iota
	MsgTSuccess
	MsgTError

	// MsgTLaunch requests the manager start a worker for (db_id, worker_id),
	// per spec §4.5 "Launch(db_id, worker_id, path, options) -> channel_name".
	MsgTLaunch
	// MsgTTerminate requests the manager stop a worker, per spec §4.5
	// "Terminate(worker_id)".
	MsgTTerminate
	// MsgTWorkerReady is sent by a freshly spawned worker back to the
	// manager once it has opened the channel the manager created and opened
	// its engine, just before it enters its dispatch loop, per spec §4.5 "the manager waits for the worker to report
	// ready before returning Launch's channel_name to the caller".
	MsgTWorkerReady
)

func (t MessageType) String() string {
	switch t {
	case MsgTSuccess:
		return "success"
	case MsgTError:
		return "error"
	case MsgTLaunch:
		return "launch"
	case MsgTTerminate:
		return "terminate"
	case MsgTWorkerReady:
		return "workerReady"
	default:
		return "unknown"
	}
}

func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "success":
		*t = MsgTSuccess
	case "error":
		*t = MsgTError
	case "launch":
		*t = MsgTLaunch
	case "terminate":
		*t = MsgTTerminate
	case "workerReady":
		*t = MsgTWorkerReady
	default:
		return fmt.Errorf("control: unknown message type: %s", s)
	}
	return nil
}

// Message is a single control-plane request, response, or notification.
// Which fields apply depends on MsgType, following the teacher's
// single-struct-multiplexed-by-type convention.
type Message struct {
	MsgType MessageType `json:"msg_type"`

	WorkerID  uint32 `json:"worker_id,omitempty"`
	DBId      uint32 `json:"db_id,omitempty"`
	Path      string `json:"path,omitempty"`
	Column    bool   `json:"column,omitempty"`
	AttrCount int32  `json:"attr_count,omitempty"`
	// EngineOpts is the opaque engine configuration blob to pass through
	// to the worker's Open call, per spec §6 "engine_opts".
	EngineOpts []byte `json:"engine_opts,omitempty"`

	// ChannelName is Launch's success response payload, per spec §4.5.
	ChannelName string `json:"channel_name,omitempty"`

	Err string `json:"err,omitempty"`
}

// NewLaunchRequest builds a Launch request, per spec §4.5.
func NewLaunchRequest(dbID, workerID uint32, path string, column bool, attrCount int32, engineOpts []byte) Message {
	return Message{
		MsgType:    MsgTLaunch,
		DBId:       dbID,
		WorkerID:   workerID,
		Path:       path,
		Column:     column,
		AttrCount:  attrCount,
		EngineOpts: engineOpts,
	}
}

// NewLaunchResponse builds a Launch response carrying the new channel's
// name, or an error.
func NewLaunchResponse(channelName string, err error) Message {
	msg := Message{MsgType: MsgTSuccess, ChannelName: channelName}
	if err != nil {
		msg.MsgType = MsgTError
		msg.Err = err.Error()
	}
	return msg
}

// NewTerminateRequest builds a Terminate request, per spec §4.5.
func NewTerminateRequest(workerID uint32) Message {
	return Message{MsgType: MsgTTerminate, WorkerID: workerID}
}

// NewTerminateResponse builds a Terminate response.
func NewTerminateResponse(err error) Message {
	msg := Message{MsgType: MsgTSuccess}
	if err != nil {
		msg.MsgType = MsgTError
		msg.Err = err.Error()
	}
	return msg
}

// NewWorkerReadyNotification is sent by a worker process to the manager
// once it has opened its channel and its engine, just before it enters its
// dispatch loop.
func NewWorkerReadyNotification(workerID uint32, channelName string) Message {
	return Message{MsgType: MsgTWorkerReady, WorkerID: workerID, ChannelName: channelName}
}

// NewAckResponse builds a bare success acknowledgement, used to reply to
// WorkerReady notifications.
func NewAckResponse() Message {
	return Message{MsgType: MsgTSuccess}
}
