// Command dkvbridge is the entrypoint binary: a single executable that
// acts as either the manager or a worker depending on the subcommand it
// is invoked with (the manager spawns workers by re-invoking itself with
// "worker ...", see cmd/manager).
package main

import "github.com/dkvbridge/dkvbridge/cmd"

func main() {
	cmd.Execute()
}
