package memengine

import (
	"testing"

	"github.com/dkvbridge/dkvbridge/internal/engine"
	"github.com/dkvbridge/dkvbridge/internal/engine/enginetest"
)

func TestConformance(t *testing.T) {
	enginetest.Run(t, "memengine", func() engine.Engine { return New() })
}
