// Package config reads edgefn settings through viper: a config file, then
// EDGEFN_* environment variables, then bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/cryguy/edgefn/internal/core"
	"github.com/spf13/viper"
)

var DefaultConfigFileName = "edgefn"

// Get returns the configured value for a given key or the specified default.
func Get(key string, defaultValue any) any {
	if viper.IsSet(key) {
		return viper.Get(key)
	}
	return defaultValue
}

func GetInt(key string, defaultValue int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	return defaultValue
}

func GetInt64(key string, defaultValue int64) int64 {
	if viper.IsSet(key) {
		return viper.GetInt64(key)
	}
	return defaultValue
}

func GetString(key string, defaultValue string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

func GetBool(key string, defaultValue bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	return defaultValue
}

// GetMillis reads an integer number of milliseconds.
func GetMillis(key string, defaultValue time.Duration) time.Duration {
	if viper.IsSet(key) {
		return time.Duration(viper.GetInt64(key)) * time.Millisecond
	}
	return defaultValue
}

// GetList reads a YAML list or a comma-separated string.
func GetList(key string, defaultValue []string) []string {
	if !viper.IsSet(key) {
		return defaultValue
	}
	if s, ok := viper.Get(key).(string); ok {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return viper.GetStringSlice(key)
}

// ReadConfiguration reads a configuration file stored in one of the
// predefined paths and enables EDGEFN_* environment overrides. A missing
// file is not an error.
func ReadConfiguration(fileName string) error {
	viper.SetEnvPrefix("EDGEFN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.AddConfigPath("/etc/edgefn/")
	viper.AddConfigPath("$HOME/")
	viper.AddConfigPath(".")

	if fileName != "" {
		parentDir := filepath.Dir(fileName)
		baseName := filepath.Base(fileName)
		baseNameNoExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))
		viper.SetConfigName(baseNameNoExt)
		viper.AddConfigPath(parentDir)
	} else {
		viper.SetConfigName(DefaultConfigFileName)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: parsing %s: %w", viper.ConfigFileUsed(), err)
	}
	return nil
}

// Settings is the resolved configuration.
type Settings struct {
	Address      string
	Prefix       string
	MaxBodyBytes int64

	Engine core.EngineConfig

	RegistryDriver string
	RegistryDSN    string
	EtcdEndpoints  []string

	SecretsDriver string
	SecretsDSN    string
	RedisAddr     string
	DotenvDir     string

	MetricsEnabled  bool
	TracingEndpoint string
	TracingInsecure bool
	LogLevel        slog.Level
}

// Load resolves every key against its default.
func Load() (*Settings, error) {
	def := core.DefaultEngineConfig()
	s := &Settings{
		Address:      GetString(API_ADDRESS, ":8080"),
		Prefix:       strings.TrimRight(GetString(API_PREFIX, "/functions/v1"), "/"),
		MaxBodyBytes: GetInt64(API_MAX_BODY_BYTES, 6<<20),
		Engine: core.EngineConfig{
			ExecutionTimeout: GetMillis(EXECUTION_TIMEOUT_MS, def.ExecutionTimeout),
			MemoryLimitMB:    GetInt(EXECUTION_MEMORY_LIMIT_MB, def.MemoryLimitMB),
			MaxConcurrent:    GetInt(EXECUTION_MAX_CONCURRENT, def.MaxConcurrent),
			QueueTimeout:     GetMillis(EXECUTION_QUEUE_TIMEOUT_MS, def.QueueTimeout),
			MaxSourceKB:      GetInt(EXECUTION_MAX_SOURCE_KB, def.MaxSourceKB),
			MaxResponseBytes: GetInt(EXECUTION_MAX_RESPONSE_BYTES, def.MaxResponseBytes),
			AllowFetch:       GetBool(EXECUTION_ALLOW_FETCH, def.AllowFetch),
			MaxFetchRequests: GetInt(EXECUTION_MAX_FETCHES, def.MaxFetchRequests),
			FetchTimeout:     GetMillis(EXECUTION_FETCH_TIMEOUT_MS, def.FetchTimeout),
		},
		RegistryDriver:  GetString(REGISTRY_DRIVER, "sqlite"),
		RegistryDSN:     GetString(REGISTRY_DSN, "edgefn.db"),
		EtcdEndpoints:   GetList(REGISTRY_ETCD_ENDPOINTS, []string{"localhost:2379"}),
		SecretsDriver:   GetString(SECRETS_DRIVER, "sqlite"),
		SecretsDSN:      GetString(SECRETS_DSN, "edgefn.db"),
		RedisAddr:       GetString(SECRETS_REDIS_ADDR, "localhost:6379"),
		DotenvDir:       GetString(SECRETS_DOTENV_DIR, "secrets"),
		MetricsEnabled:  GetBool(METRICS_ENABLED, true),
		TracingEndpoint: GetString(TRACING_ENDPOINT, ""),
		TracingInsecure: GetBool(TRACING_INSECURE, false),
	}

	if err := s.LogLevel.UnmarshalText([]byte(GetString(LOG_LEVEL, "info"))); err != nil {
		return nil, fmt.Errorf("config: %s: %w", LOG_LEVEL, err)
	}
	if s.Engine.ExecutionTimeout <= 0 {
		return nil, fmt.Errorf("config: %s must be positive", EXECUTION_TIMEOUT_MS)
	}
	if s.Engine.MaxConcurrent < 0 {
		return nil, fmt.Errorf("config: %s must not be negative", EXECUTION_MAX_CONCURRENT)
	}
	return s, nil
}
