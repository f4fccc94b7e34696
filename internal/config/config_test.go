package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Address != ":8080" || s.Prefix != "/functions/v1" {
		t.Errorf("api = %q %q", s.Address, s.Prefix)
	}
	if s.Engine.ExecutionTimeout != 30*time.Second {
		t.Errorf("timeout = %v", s.Engine.ExecutionTimeout)
	}
	if s.Engine.MaxConcurrent != 0 || s.Engine.AllowFetch {
		t.Errorf("engine = %+v", s.Engine)
	}
	if s.RegistryDriver != "sqlite" || s.SecretsDriver != "sqlite" {
		t.Errorf("drivers = %q %q", s.RegistryDriver, s.SecretsDriver)
	}
	if len(s.EtcdEndpoints) != 1 || s.EtcdEndpoints[0] != "localhost:2379" {
		t.Errorf("etcd = %v", s.EtcdEndpoints)
	}
	if s.LogLevel != slog.LevelInfo || !s.MetricsEnabled {
		t.Errorf("log level = %v metrics = %v", s.LogLevel, s.MetricsEnabled)
	}
}

func TestReadConfiguration_File(t *testing.T) {
	viper.Reset()
	path := filepath.Join(t.TempDir(), "custom.yaml")
	content := `
api:
  address: ":9090"
  prefix: "/fn/"
execution:
  timeout_ms: 250
  max_concurrent: 8
  allow_fetch: true
registry:
  driver: etcd
  etcd_endpoints:
    - a:2379
    - b:2379
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := ReadConfiguration(path); err != nil {
		t.Fatalf("ReadConfiguration: %v", err)
	}
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Address != ":9090" || s.Prefix != "/fn" {
		t.Errorf("api = %q %q", s.Address, s.Prefix)
	}
	if s.Engine.ExecutionTimeout != 250*time.Millisecond || s.Engine.MaxConcurrent != 8 || !s.Engine.AllowFetch {
		t.Errorf("engine = %+v", s.Engine)
	}
	if s.RegistryDriver != "etcd" || len(s.EtcdEndpoints) != 2 {
		t.Errorf("registry = %q %v", s.RegistryDriver, s.EtcdEndpoints)
	}
	if s.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", s.LogLevel)
	}
}

func TestReadConfiguration_MissingFileIsFine(t *testing.T) {
	viper.Reset()
	if err := ReadConfiguration(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Errorf("ReadConfiguration: %v", err)
	}
}

func TestReadConfiguration_Env(t *testing.T) {
	viper.Reset()
	t.Setenv("EDGEFN_EXECUTION_TIMEOUT_MS", "1500")
	t.Setenv("EDGEFN_REGISTRY_ETCD_ENDPOINTS", "x:1, y:2")
	if err := ReadConfiguration(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("ReadConfiguration: %v", err)
	}
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Engine.ExecutionTimeout != 1500*time.Millisecond {
		t.Errorf("timeout = %v", s.Engine.ExecutionTimeout)
	}
	if len(s.EtcdEndpoints) != 2 || s.EtcdEndpoints[1] != "y:2" {
		t.Errorf("etcd = %v", s.EtcdEndpoints)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]any{
		EXECUTION_TIMEOUT_MS:     0,
		EXECUTION_MAX_CONCURRENT: -1,
		LOG_LEVEL:                "loud",
	}
	for key, val := range tests {
		viper.Reset()
		viper.Set(key, val)
		if _, err := Load(); err == nil {
			t.Errorf("%s=%v: expected error", key, val)
		}
	}
	viper.Reset()
}
