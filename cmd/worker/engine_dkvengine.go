//go:build dkvengine

package worker

import (
	"github.com/dkvbridge/dkvbridge/internal/engine"
	"github.com/dkvbridge/dkvbridge/internal/engine/cengine"
)

// newEngine picks the storage engine at build time: built with -tags
// dkvengine, the worker links against the native engine library through
// cengine's cgo bridge instead of memengine, per spec §1's requirement
// that the native engine only ever be linked into the worker binary.
func newEngine() engine.Engine {
	return cengine.New()
}
