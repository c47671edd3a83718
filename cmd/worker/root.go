// Package worker implements the dkvbridge worker process's command line,
// grounded on the teacher's cmd/serve.ServeCmd shape (cobra command with
// PreRunE binding flags to viper, RunE doing the real work), adapted from
// starting a Raft-backed RPC server to opening a shared-memory channel and
// entering the single-threaded dispatch loop described in
// internal/worker's package doc.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdUtil "github.com/dkvbridge/dkvbridge/cmd/util"
	"github.com/dkvbridge/dkvbridge/internal/config"
	"github.com/dkvbridge/dkvbridge/internal/control"
	"github.com/dkvbridge/dkvbridge/internal/engine"
	"github.com/dkvbridge/dkvbridge/internal/ipc"
	"github.com/dkvbridge/dkvbridge/internal/logging"
	"github.com/dkvbridge/dkvbridge/internal/metrics"
	dkvworker "github.com/dkvbridge/dkvbridge/internal/worker"
)

var workerCmdConfig = &config.WorkerConfig{}

// Cmd is the "dkvbridge worker" subcommand: it is spawned by the manager
// (internal/manager.launch), never run directly by an operator, but is a
// plain cobra command like the rest of the tree so it can also be started
// by hand for debugging.
var Cmd = &cobra.Command{
	Use:     "worker",
	Short:   "Run a dkvbridge worker process",
	Long:    `Runs one worker process: opens the shared-memory channel created by the manager, opens the storage engine, and serves Open/Close/Get/Put/Delete/Count/ReadBatch/RangeQuery requests until it receives Terminate.`,
	PreRunE: processConfig,
	RunE:    run,
}

func init() {
	cobra.OnInitialize(cmdUtil.InitEnv)

	key := "worker-id"
	Cmd.Flags().Uint32(key, 0, cmdUtil.WrapString("Unique identifier for this worker (spec: channel name is derived from this)"))

	key = "db-id"
	Cmd.Flags().Uint32(key, 0, cmdUtil.WrapString("Database identifier this worker serves"))

	key = "path"
	Cmd.Flags().String(key, "", cmdUtil.WrapString("Path passed through to the storage engine's Open call"))

	key = "column"
	Cmd.Flags().Bool(key, false, cmdUtil.WrapString("Whether to open the engine in column-store mode"))

	key = "attr-count"
	Cmd.Flags().Int32(key, 0, cmdUtil.WrapString("Number of attributes, only meaningful in column-store mode"))

	key = "read-batch-size"
	Cmd.Flags().Int(key, dkvworker.DefaultReadBatchSize, cmdUtil.WrapString("Fixed bulk segment size (bytes) ReadBatch always allocates (READBATCHSIZE)"))

	key = "control-socket"
	Cmd.Flags().String(key, "/tmp/dkvbridge-manager.sock", cmdUtil.WrapString("Unix socket the manager listens on for control-plane messages"))

	key = "arena-size"
	Cmd.Flags().Int(key, ipc.DefaultArenaSize, cmdUtil.WrapString("Request arena size in bytes, must match the manager's channel config"))

	key = "slot-size"
	Cmd.Flags().Int(key, ipc.DefaultSlotSize, cmdUtil.WrapString("Response slot size in bytes, must match the manager's channel config"))

	key = "slot-count"
	Cmd.Flags().Int(key, ipc.DefaultSlotCount, cmdUtil.WrapString("Number of response slots, must match the manager's channel config"))

	key = "log-level"
	Cmd.Flags().String(key, "info", cmdUtil.WrapString("Log level (debug, info, warn, error)"))

	key = "metrics-endpoint"
	Cmd.Flags().String(key, "", cmdUtil.WrapString("If set, an HTTP address to expose Prometheus metrics on (e.g. localhost:9100)"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}
	workerCmdConfig.WorkerID = viper.GetUint32("worker-id")
	workerCmdConfig.DBId = viper.GetUint32("db-id")
	workerCmdConfig.Path = viper.GetString("path")
	workerCmdConfig.Column = viper.GetBool("column")
	workerCmdConfig.AttrCount = viper.GetInt32("attr-count")
	workerCmdConfig.ReadBatchSize = viper.GetInt("read-batch-size")
	workerCmdConfig.ArenaSize = viper.GetInt("arena-size")
	workerCmdConfig.SlotSize = viper.GetInt("slot-size")
	workerCmdConfig.SlotCount = viper.GetInt("slot-count")
	workerCmdConfig.LogLevel = viper.GetString("log-level")
	workerCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")

	if workerCmdConfig.WorkerID == 0 {
		return fmt.Errorf("worker: --worker-id is required")
	}
	if workerCmdConfig.Path == "" {
		return fmt.Errorf("worker: --path is required")
	}
	return nil
}

func run(cmd *cobra.Command, _ []string) error {
	logging.Init(workerCmdConfig.LogLevel)
	log := logging.Get("worker").WithFields("worker_id", workerCmdConfig.WorkerID, "db_id", workerCmdConfig.DBId)

	cfg := ipc.Config{
		ArenaSize: workerCmdConfig.ArenaSize,
		SlotSize:  workerCmdConfig.SlotSize,
		SlotCount: workerCmdConfig.SlotCount,
	}
	ch, err := ipc.Open(workerCmdConfig.WorkerID, cfg)
	if err != nil {
		return fmt.Errorf("worker: open channel: %w", err)
	}
	defer ch.Close()

	eng := newEngine()
	state := dkvworker.New(workerCmdConfig.WorkerID, workerCmdConfig.DBId, ch, eng)
	state.SetReadBatchSize(workerCmdConfig.ReadBatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := engine.Options{
		Opts:        workerCmdConfig.EngineOpts,
		ColumnStore: workerCmdConfig.Column,
		AttrCount:   workerCmdConfig.AttrCount,
	}
	if err := state.BootstrapOpen(ctx, workerCmdConfig.Path, opts); err != nil {
		return fmt.Errorf("worker: open engine: %w", err)
	}

	socketPath := viper.GetString("control-socket")
	ctrl, err := control.Dial(socketPath)
	if err != nil {
		return fmt.Errorf("worker: dial control socket: %w", err)
	}
	defer ctrl.Close()
	if _, err := ctrl.Send(control.NewWorkerReadyNotification(workerCmdConfig.WorkerID, ch.Name())); err != nil {
		return fmt.Errorf("worker: report ready: %w", err)
	}

	if endpoint := workerCmdConfig.MetricsEndpoint; endpoint != "" {
		go serveMetrics(endpoint, log)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		log.Infof("signal received, canceling")
		cancel()
	}()

	log.Infof("serving channel %s", ch.Name())
	return state.Run(ctx)
}

// dkvLogger is the subset of logger.ILogger serveMetrics needs.
type dkvLogger interface {
	Errorf(string, ...interface{})
}

func serveMetrics(addr string, log dkvLogger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w)
	})
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("worker: metrics server: %v", err)
	}
}
