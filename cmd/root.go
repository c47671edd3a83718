package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dkvbridge/dkvbridge/cmd/bench"
	"github.com/dkvbridge/dkvbridge/cmd/kv"
	"github.com/dkvbridge/dkvbridge/cmd/manager"
	"github.com/dkvbridge/dkvbridge/cmd/worker"
)

// Version is the dkvbridge release version.
const Version = "0.1.0"

// RootCmd is the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "dkvbridge",
	Short: "shared-memory bridge between a query executor and an embedded storage engine",
	Long: fmt.Sprintf(`dkvbridge (v%s)

A process-isolated, shared-memory IPC bridge between a relational
database's query executor and an embedded key-value storage engine
hosted in a long-lived worker process.`, Version),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dkvbridge v%s\n", Version)
	},
}

func init() {
	RootCmd.AddCommand(worker.Cmd)
	RootCmd.AddCommand(manager.Cmd)
	RootCmd.AddCommand(kv.Cmd)
	RootCmd.AddCommand(bench.Cmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
