// Package kv implements a debugging CLI for talking to a single
// dkvbridge worker's channel directly, bypassing the query executor this
// system is normally embedded in. Grounded on the teacher's cmd/kv (an
// RPC-backed get/set/delete/has CLI), adapted from dialing a dKV server
// over the network to opening a shared-memory channel by worker id.
package kv

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdUtil "github.com/dkvbridge/dkvbridge/cmd/util"
	"github.com/dkvbridge/dkvbridge/internal/ipc"
	"github.com/dkvbridge/dkvbridge/pkg/client"
)

var kvClient *client.Client

// Cmd is the "dkvbridge kv" command group.
var Cmd = &cobra.Command{
	Use:               "kv",
	Short:             "Inspect and mutate a worker's key/value store directly",
	PersistentPreRunE: setupClient,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if kvClient == nil {
			return nil
		}
		_ = kvClient.Close()
		return kvClient.Disconnect()
	},
}

func init() {
	cobra.OnInitialize(cmdUtil.InitEnv)

	key := "worker-id"
	Cmd.PersistentFlags().Uint32(key, 0, cmdUtil.WrapString("Worker id to connect to"))

	key = "db-id"
	Cmd.PersistentFlags().Uint32(key, 0, cmdUtil.WrapString("Database id"))

	key = "arena-size"
	Cmd.PersistentFlags().Int(key, ipc.DefaultArenaSize, cmdUtil.WrapString("Must match the worker's channel config"))

	key = "slot-size"
	Cmd.PersistentFlags().Int(key, ipc.DefaultSlotSize, cmdUtil.WrapString("Must match the worker's channel config"))

	key = "slot-count"
	Cmd.PersistentFlags().Int(key, ipc.DefaultSlotCount, cmdUtil.WrapString("Must match the worker's channel config"))

	Cmd.AddCommand(putCmd)
	Cmd.AddCommand(getCmd)
	Cmd.AddCommand(delCmd)
	Cmd.AddCommand(countCmd)
	Cmd.AddCommand(scanCmd)
}

func setupClient(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}
	workerID := viper.GetUint32("worker-id")
	dbID := viper.GetUint32("db-id")
	cfg := ipc.Config{
		ArenaSize: viper.GetInt("arena-size"),
		SlotSize:  viper.GetInt("slot-size"),
		SlotCount: viper.GetInt("slot-count"),
	}

	c, err := client.Connect(workerID, dbID, cfg)
	if err != nil {
		return err
	}
	kvClient = c

	// The engine is already open on the worker (opened at BootstrapOpen);
	// this Open call only registers a reference for this CLI invocation.
	return kvClient.Open("", false, 0, nil)
}
