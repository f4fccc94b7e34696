package core

import "context"

// Registry resolves function identifiers to stored definitions.
// Lookup returns ErrFunctionNotFound when nothing is stored under id.
type Registry interface {
	Lookup(ctx context.Context, id string) (*FunctionDefinition, error)
}

// SecretResolver returns the secrets owned by a tenant. Implementations
// return a fresh map on every call.
type SecretResolver interface {
	Resolve(ctx context.Context, tenant string) (SecretMap, error)
}

// IsolateBackend creates isolation units. Each engine (QuickJS, V8)
// provides one, selected at build time.
type IsolateBackend interface {
	Name() string
	NewIsolate(cfg EngineConfig) (Isolate, error)
}

// Isolate is a single-use execution environment for one invocation.
//
// Run and Close must be called from the goroutine that created the isolate.
// Terminate may be called from any goroutine, any number of times, including
// after Close.
type Isolate interface {
	Run(msg *Message) (*Reply, error)
	Terminate()
	Logs() []LogEntry
	Close()
}
