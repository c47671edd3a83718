//go:build !dkvengine

package worker

import (
	"github.com/dkvbridge/dkvbridge/internal/engine"
	"github.com/dkvbridge/dkvbridge/internal/engine/memengine"
)

// newEngine picks the storage engine at build time: this is the default
// build, without the dkvengine tag, so memengine (a pure-Go in-memory
// btree) is what the worker opens.
func newEngine() engine.Engine {
	return memengine.New()
}
