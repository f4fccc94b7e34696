//go:build v8

package edgefn

import (
	"github.com/cryguy/edgefn/internal/core"
	"github.com/cryguy/edgefn/internal/v8engine"
)

// NewBackend returns the engine compiled into this binary.
func NewBackend() core.IsolateBackend {
	return v8engine.Backend{}
}
