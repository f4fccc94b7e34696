package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/cryguy/edgefn/internal/config"
	"github.com/cryguy/edgefn/internal/core"
	"github.com/cryguy/edgefn/internal/registry"
	"github.com/cryguy/edgefn/internal/secrets"
	"github.com/cryguy/edgefn/internal/store"
	"gorm.io/gorm"
)

// loadSettings reads the config file and environment.
func loadSettings() (*config.Settings, error) {
	if err := config.ReadConfiguration(configPath); err != nil {
		return nil, err
	}
	return config.Load()
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// backends holds the stores a command needs and closes them together.
type backends struct {
	Registry registry.Store
	Secrets  core.SecretResolver

	// SecretWriter is set when the secret store accepts writes.
	SecretWriter secretWriter

	closers []func() error
}

type secretWriter interface {
	Set(ctx context.Context, tenant, key, value string) error
}

func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// openBackends connects the function registry and secret store named in s.
// SQL drivers pointing at the same DSN share one connection pool.
func openBackends(ctx context.Context, s *config.Settings, logger *slog.Logger) (*backends, error) {
	b := &backends{}
	dbs := map[string]*gorm.DB{}
	openDB := func(driver, dsn string) (*gorm.DB, error) {
		key := driver + "|" + dsn
		if db, ok := dbs[key]; ok {
			return db, nil
		}
		db, err := store.Open(store.Config{Driver: driver, DSN: dsn}, logger)
		if err != nil {
			return nil, err
		}
		dbs[key] = db
		b.closers = append(b.closers, func() error { return store.Close(db) })
		return db, nil
	}

	switch s.RegistryDriver {
	case "sqlite", "postgres":
		db, err := openDB(s.RegistryDriver, s.RegistryDSN)
		if err != nil {
			b.Close()
			return nil, err
		}
		reg, err := registry.NewSQL(db)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Registry = reg
	case "etcd":
		cli, err := registry.DialEtcd(s.EtcdEndpoints)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, cli.Close)
		b.Registry = registry.NewEtcd(cli, 0)
	case "memory":
		b.Registry = registry.NewMemory()
	default:
		return nil, fmt.Errorf("unknown registry driver %q", s.RegistryDriver)
	}

	switch s.SecretsDriver {
	case "sqlite", "postgres":
		db, err := openDB(s.SecretsDriver, s.SecretsDSN)
		if err != nil {
			b.Close()
			return nil, err
		}
		sec, err := secrets.NewSQL(db)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Secrets, b.SecretWriter = sec, sec
	case "redis":
		rdb, err := secrets.DialRedis(ctx, s.RedisAddr)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, rdb.Close)
		sec := secrets.NewRedis(rdb)
		b.Secrets, b.SecretWriter = sec, sec
	case "dotenv":
		b.Secrets = secrets.NewDotenv(s.DotenvDir)
	case "none":
		b.Secrets = secrets.None{}
	default:
		b.Close()
		return nil, fmt.Errorf("unknown secrets driver %q", s.SecretsDriver)
	}

	logger.Debug("cli: backends opened", "registry", s.RegistryDriver, "secrets", s.SecretsDriver)
	return b, nil
}
