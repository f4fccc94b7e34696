// Package secrets provides Secret Resolver clients. Every resolver returns a
// fresh map per call and core.ErrTenantNotFound when the tenant has no
// secrets at all.
package secrets

import (
	"context"
	"fmt"
	"regexp"

	"github.com/cryguy/edgefn/internal/core"
)

var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func notFound(tenant string) error {
	return fmt.Errorf("secrets: %w: %s", core.ErrTenantNotFound, tenant)
}

// Static resolves from a fixed map of tenant to secrets.
type Static map[string]core.SecretMap

var _ core.SecretResolver = Static(nil)

// Resolve returns a copy of the tenant's secrets.
func (s Static) Resolve(_ context.Context, tenant string) (core.SecretMap, error) {
	m, ok := s[tenant]
	if !ok {
		return nil, notFound(tenant)
	}
	return m.Clone(), nil
}

// None resolves every tenant to an empty map.
type None struct{}

var _ core.SecretResolver = None{}

// Resolve returns an empty map.
func (None) Resolve(context.Context, string) (core.SecretMap, error) {
	return core.SecretMap{}, nil
}
