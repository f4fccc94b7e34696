package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cryguy/edgefn/internal/core"
	"github.com/joho/godotenv"
)

// Dotenv resolves secrets from <dir>/<tenant>.env. Files are read, never
// loaded into the process environment.
type Dotenv struct {
	dir string
}

var _ core.SecretResolver = (*Dotenv)(nil)

// NewDotenv reads tenant files from dir.
func NewDotenv(dir string) *Dotenv {
	return &Dotenv{dir: dir}
}

// Resolve parses the tenant's file.
func (d *Dotenv) Resolve(_ context.Context, tenant string) (core.SecretMap, error) {
	if !tenantPattern.MatchString(tenant) {
		return nil, notFound(tenant)
	}
	path := filepath.Join(d.dir, tenant+".env")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(tenant)
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("secrets: reading %s: %w", path, err)
	}
	return core.SecretMap(vals), nil
}

// ReadFile parses a single dotenv file, used by the CLI run command.
func ReadFile(path string) (core.SecretMap, error) {
	vals, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("secrets: reading %s: %w", path, err)
	}
	return core.SecretMap(vals), nil
}
