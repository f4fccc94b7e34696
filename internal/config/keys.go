package config

// Listen address of the HTTP server
const API_ADDRESS = "api.address"

// Path prefix placed before the function identifier
const API_PREFIX = "api.prefix"

// Largest accepted inbound request body, in bytes
const API_MAX_BODY_BYTES = "api.max_body_bytes"

// Deadline of a single execution (ms)
const EXECUTION_TIMEOUT_MS = "execution.timeout_ms"

// Heap limit of each isolation unit (MB)
const EXECUTION_MEMORY_LIMIT_MB = "execution.memory_limit_mb"

// Maximum number of live isolation units (0 = unbounded)
const EXECUTION_MAX_CONCURRENT = "execution.max_concurrent"

// How long a request may wait for an execution slot (ms)
const EXECUTION_QUEUE_TIMEOUT_MS = "execution.queue_timeout_ms"

// Grants the fetch capability to user code (true/false)
const EXECUTION_ALLOW_FETCH = "execution.allow_fetch"

// Outbound fetches allowed per execution
const EXECUTION_MAX_FETCHES = "execution.max_fetches"

// Timeout of a single outbound fetch (ms)
const EXECUTION_FETCH_TIMEOUT_MS = "execution.fetch_timeout_ms"

// Largest response body accepted from user code, in bytes
const EXECUTION_MAX_RESPONSE_BYTES = "execution.max_response_bytes"

// Largest accepted function source (KB)
const EXECUTION_MAX_SOURCE_KB = "execution.max_source_kb"

// Function registry backend: sqlite, postgres, etcd or memory
const REGISTRY_DRIVER = "registry.driver"

// gorm DSN of the SQL registry
const REGISTRY_DSN = "registry.dsn"

// etcd endpoints of the etcd registry
const REGISTRY_ETCD_ENDPOINTS = "registry.etcd_endpoints"

// Secret store backend: sqlite, postgres, redis, dotenv or none
const SECRETS_DRIVER = "secrets.driver"

// gorm DSN of the SQL secret store
const SECRETS_DSN = "secrets.dsn"

// Redis address of the redis secret store
const SECRETS_REDIS_ADDR = "secrets.redis_addr"

// Directory holding <tenant>.env files
const SECRETS_DOTENV_DIR = "secrets.dotenv_dir"

// Exposes /metrics (true/false)
const METRICS_ENABLED = "metrics.enabled"

// OTLP/HTTP endpoint; empty disables tracing
const TRACING_ENDPOINT = "tracing.endpoint"

// Sends traces without TLS (true/false)
const TRACING_INSECURE = "tracing.insecure"

// Log level: debug, info, warn or error
const LOG_LEVEL = "log.level"
