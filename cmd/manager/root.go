// Package manager implements the dkvbridge manager process's command
// line: the process every backend spawns via a single shared entrypoint
// (spec §4.5) to Launch and Terminate workers, grounded on the teacher's
// cmd/serve.ServeCmd flag/PreRunE/RunE shape.
package manager

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdUtil "github.com/dkvbridge/dkvbridge/cmd/util"
	"github.com/dkvbridge/dkvbridge/internal/config"
	"github.com/dkvbridge/dkvbridge/internal/ipc"
	"github.com/dkvbridge/dkvbridge/internal/logging"
	dkvmanager "github.com/dkvbridge/dkvbridge/internal/manager"
)

var (
	managerCmdConfig = &config.ManagerConfig{}
	// workerArgs is prepended to every spawned worker's flags. It is set
	// to []string{"worker"} when WorkerBinary defaults to this same
	// multi-command executable, and left empty when the operator points
	// --worker-binary at a dedicated worker executable.
	workerArgs []string
)

// Cmd is the "dkvbridge manager" subcommand.
var Cmd = &cobra.Command{
	Use:     "manager",
	Short:   "Run the dkvbridge worker-process supervisor",
	Long:    `Runs the manager: listens for Launch/Terminate control-plane requests, spawns/reaps worker processes, and owns their shared-memory channels.`,
	PreRunE: processConfig,
	RunE:    run,
}

func init() {
	cobra.OnInitialize(cmdUtil.InitEnv)

	key := "control-socket"
	Cmd.Flags().String(key, "/tmp/dkvbridge-manager.sock", cmdUtil.WrapString("Unix socket to listen on for Launch/Terminate/WorkerReady messages"))

	key = "worker-binary"
	Cmd.Flags().String(key, "", cmdUtil.WrapString("Path to the dkvbridge worker binary to spawn (defaults to this same binary with the 'worker' subcommand)"))

	key = "reap-interval"
	Cmd.Flags().Duration(key, 5*time.Second, cmdUtil.WrapString("How often to probe worker liveness for processes that died without Terminate"))

	key = "arena-size"
	Cmd.Flags().Int(key, ipc.DefaultArenaSize, cmdUtil.WrapString("Request arena size in bytes for every channel this manager creates"))

	key = "slot-size"
	Cmd.Flags().Int(key, ipc.DefaultSlotSize, cmdUtil.WrapString("Response slot size in bytes for every channel this manager creates"))

	key = "slot-count"
	Cmd.Flags().Int(key, ipc.DefaultSlotCount, cmdUtil.WrapString("Number of response slots for every channel this manager creates"))

	key = "log-level"
	Cmd.Flags().String(key, "info", cmdUtil.WrapString("Log level (debug, info, warn, error)"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}
	managerCmdConfig.SocketPath = viper.GetString("control-socket")
	managerCmdConfig.WorkerBinary = viper.GetString("worker-binary")
	managerCmdConfig.ReapInterval = viper.GetDuration("reap-interval")
	managerCmdConfig.LogLevel = viper.GetString("log-level")

	if managerCmdConfig.WorkerBinary == "" {
		exe, err := os.Executable()
		if err != nil {
			return err
		}
		managerCmdConfig.WorkerBinary = exe
		workerArgs = []string{"worker"}
	}
	return nil
}

func run(_ *cobra.Command, _ []string) error {
	logging.Init(managerCmdConfig.LogLevel)
	log := logging.Get("manager")

	m := dkvmanager.New(dkvmanager.Config{
		SocketPath:   managerCmdConfig.SocketPath,
		WorkerBinary: managerCmdConfig.WorkerBinary,
		WorkerArgs:   workerArgs,
		ReapInterval: managerCmdConfig.ReapInterval,
		ChannelCfg: ipc.Config{
			ArenaSize: viper.GetInt("arena-size"),
			SlotSize:  viper.GetInt("slot-size"),
			SlotCount: viper.GetInt("slot-count"),
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		log.Infof("manager: signal received, shutting down")
		cancel()
	}()

	log.Infof("manager: listening on %s", managerCmdConfig.SocketPath)
	err := m.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}
