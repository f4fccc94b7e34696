// Package registry provides Function Registry clients: a gorm-backed SQL
// store, an etcd store and an in-memory store.
package registry

import (
	"context"
	"fmt"
	"regexp"

	"github.com/cryguy/edgefn/internal/core"
)

// identifierPattern is the charset accepted for function identifiers.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// maxIdentifierLen bounds identifiers so they fit the SQL key column.
const maxIdentifierLen = 128

// ValidIdentifier reports whether id may name a function.
func ValidIdentifier(id string) bool {
	return len(id) <= maxIdentifierLen && identifierPattern.MatchString(id)
}

// Store is a registry that can also be written, used by the CLI and tests.
type Store interface {
	core.Registry
	Put(ctx context.Context, def *core.FunctionDefinition) error
	Delete(ctx context.Context, identifier string) error
	List(ctx context.Context) ([]string, error)
}

func validate(def *core.FunctionDefinition) error {
	if def == nil {
		return fmt.Errorf("registry: nil function definition")
	}
	if !ValidIdentifier(def.Identifier) {
		return fmt.Errorf("registry: %w: %q", core.ErrInvalidIdentifier, def.Identifier)
	}
	switch def.Status {
	case core.StatusActive, core.StatusInactive, core.StatusDraft:
	default:
		return fmt.Errorf("registry: unknown status %q", def.Status)
	}
	return nil
}
