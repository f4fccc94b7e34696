package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cryguy/edgefn/internal/core"
)

// Memory is an in-memory registry. Lookups return copies.
type Memory struct {
	mu  sync.RWMutex
	fns map[string]core.FunctionDefinition
}

var _ Store = (*Memory)(nil)

// NewMemory creates a registry holding defs.
func NewMemory(defs ...*core.FunctionDefinition) *Memory {
	m := &Memory{fns: make(map[string]core.FunctionDefinition, len(defs))}
	for _, def := range defs {
		m.fns[def.Identifier] = *def
	}
	return m
}

// Lookup returns the function stored under identifier.
func (m *Memory) Lookup(_ context.Context, identifier string) (*core.FunctionDefinition, error) {
	m.mu.RLock()
	def, ok := m.fns[identifier]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: %w: %s", core.ErrFunctionNotFound, identifier)
	}
	return &def, nil
}

// Put stores def, replacing any previous version.
func (m *Memory) Put(_ context.Context, def *core.FunctionDefinition) error {
	if err := validate(def); err != nil {
		return err
	}
	m.mu.Lock()
	m.fns[def.Identifier] = *def
	m.mu.Unlock()
	return nil
}

// Delete removes identifier. Deleting a missing function is not an error.
func (m *Memory) Delete(_ context.Context, identifier string) error {
	m.mu.Lock()
	delete(m.fns, identifier)
	m.mu.Unlock()
	return nil
}

// List returns the stored identifiers in order.
func (m *Memory) List(context.Context) ([]string, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.fns))
	for id := range m.fns {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}
