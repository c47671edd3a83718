package wire

import "encoding/json"

// Op identifies the operation a request carries, per spec §6 "Operation codes".
type Op uint32

const (
	OpDummy Op = iota
	OpOpen
	OpClose
	OpCount
	OpPut
	OpGet
	OpDel
	OpLoad
	OpReadBatch
	OpDelCursor
	OpRangeQuery
	OpClearRangeQuery
	OpLaunch
	OpTerminate
)

func (o Op) String() string {
	switch o {
	case OpDummy:
		return "Dummy"
	case OpOpen:
		return "Open"
	case OpClose:
		return "Close"
	case OpCount:
		return "Count"
	case OpPut:
		return "Put"
	case OpGet:
		return "Get"
	case OpDel:
		return "Del"
	case OpLoad:
		return "Load"
	case OpReadBatch:
		return "ReadBatch"
	case OpDelCursor:
		return "DelCursor"
	case OpRangeQuery:
		return "RangeQuery"
	case OpClearRangeQuery:
		return "ClearRangeQuery"
	case OpLaunch:
		return "Launch"
	case OpTerminate:
		return "Terminate"
	default:
		return "Unknown"
	}
}

// MarshalJSON renders an Op as its name, matching the teacher's
// MessageType convention of readable JSON over raw integers.
func (o Op) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// HasResponse reports whether op follows the request/response path, i.e.
// whether it carries a valid response_channel_id (spec §3). Load and
// ClearRangeQuery are fire-and-forget; Terminate has no response because
// the worker process is exiting before it could send one.
func (o Op) HasResponse() bool {
	switch o {
	case OpLoad, OpClearRangeQuery, OpTerminate:
		return false
	default:
		return true
	}
}
