package core

import "time"

// EngineConfig holds runtime limits applied to every isolation unit.
type EngineConfig struct {
	ExecutionTimeout  time.Duration // deadline for a single invocation
	MemoryLimitMB     int           // per-unit heap limit, 0 disables
	MaxConcurrent     int           // admitted units at once, 0 is unlimited
	QueueTimeout      time.Duration // how long a request may wait for admission
	MaxSourceKB       int           // largest accepted function source
	MaxResponseBytes  int           // largest response body accepted from user code
	AllowFetch        bool          // expose outbound fetch to user code
	AllowPrivateFetch bool          // skip the private address guard (tests only)
	MaxFetchRequests  int           // outbound fetches per invocation
	FetchTimeout      time.Duration // per-fetch timeout
}

// DefaultEngineConfig returns the limits used when nothing is configured.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ExecutionTimeout: 30 * time.Second,
		MemoryLimitMB:    128,
		QueueTimeout:     time.Second,
		MaxSourceKB:      1024,
		MaxResponseBytes: 10 * 1024 * 1024,
		MaxFetchRequests: 50,
		FetchTimeout:     10 * time.Second,
	}
}
