// Package cmd implements the command-line interface for dkvbridge.
//
// The package is organized into several subpackages:
//
//   - worker: runs a single worker process (spawned by the manager)
//   - manager: runs the supervisor that launches/terminates workers
//   - kv: debugging CLI for reading/writing a worker's store directly
//   - bench: throughput micro-benchmark against a worker's channel
//   - util: shared cobra/viper helpers (internal use)
//
// See dkvbridge -help for a list of all commands.
package cmd
