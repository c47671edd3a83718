// Package config holds the ambient configuration structs for every
// dkvbridge process, in the shape and pretty-printing style of the
// teacher's rpc/common.ServerConfig/ClientConfig (fmt.Stringer with
// section/field helpers), read from cobra flags bound through viper by
// each cmd/ subpackage.
package config

import (
	"fmt"
	"strings"
	"time"
)

// WorkerConfig configures one worker process: which channel it serves and
// how it opens its engine handle, per spec §3/§4.3.
type WorkerConfig struct {
	WorkerID  uint32
	DBId      uint32
	Path      string
	Column    bool
	AttrCount int32
	// EngineOpts is passed through unchanged to the engine collaborator
	// (spec §6 "engine_opts: opaque engine configuration struct").
	EngineOpts []byte
	// ReadBatchSize is READBATCHSIZE (spec §6): the fixed bulk-segment
	// size ReadBatch always allocates, regardless of how many bytes a
	// given round actually writes. Zero means the worker's own default.
	ReadBatchSize int

	ArenaSize int
	SlotSize  int
	SlotCount int

	LogLevel        string
	MetricsEndpoint string
}

func (c *WorkerConfig) String() string {
	var sb strings.Builder
	addSection := func(title string) { sb.WriteString("\n" + strings.ToUpper(title) + "\n") }
	addField := func(name, value string) { sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value)) }

	addSection("Worker")
	addField("Worker ID", fmt.Sprintf("%d", c.WorkerID))
	addField("Database ID", fmt.Sprintf("%d", c.DBId))
	addField("Path", c.Path)
	addField("Column Store", fmt.Sprintf("%t", c.Column))
	addField("Attr Count", fmt.Sprintf("%d", c.AttrCount))
	addField("Read Batch Size", fmt.Sprintf("%d bytes", c.ReadBatchSize))

	addSection("Channel")
	addField("Arena Size", fmt.Sprintf("%d bytes", c.ArenaSize))
	addField("Slot Size", fmt.Sprintf("%d bytes", c.SlotSize))
	addField("Slot Count", fmt.Sprintf("%d", c.SlotCount))

	addSection("Logging")
	addField("Log Level", c.LogLevel)
	addField("Metrics Endpoint", c.MetricsEndpoint)
	return sb.String()
}

// ManagerConfig configures the manager: its control-plane listen address
// and worker liveness reaping cadence, per spec §4.5/§5.
type ManagerConfig struct {
	// SocketPath is a unix-domain-socket path the manager listens on for
	// Launch/Terminate control messages (spec §1 Non-goal "Network
	// transport" — only a host-local transport is exposed).
	SocketPath   string
	ReapInterval time.Duration
	WorkerBinary string
	LogLevel     string
}

func (c *ManagerConfig) String() string {
	var sb strings.Builder
	addSection := func(title string) { sb.WriteString("\n" + strings.ToUpper(title) + "\n") }
	addField := func(name, value string) { sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value)) }

	addSection("Manager")
	addField("Socket Path", c.SocketPath)
	addField("Reap Interval", c.ReapInterval.String())
	addField("Worker Binary", c.WorkerBinary)
	addField("Log Level", c.LogLevel)
	return sb.String()
}

// ClientConfig configures a backend process's view of one worker's
// channel — the sizes must match what the manager created it with.
type ClientConfig struct {
	WorkerID  uint32
	ArenaSize int
	SlotSize  int
	SlotCount int
}

func (c *ClientConfig) String() string {
	var sb strings.Builder
	addSection := func(title string) { sb.WriteString("\n" + strings.ToUpper(title) + "\n") }
	addField := func(name, value string) { sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value)) }

	addSection("Client")
	addField("Worker ID", fmt.Sprintf("%d", c.WorkerID))
	addField("Arena Size", fmt.Sprintf("%d bytes", c.ArenaSize))
	addField("Slot Size", fmt.Sprintf("%d bytes", c.SlotSize))
	addField("Slot Count", fmt.Sprintf("%d", c.SlotCount))
	return sb.String()
}
