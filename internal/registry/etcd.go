package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cryguy/edgefn/internal/core"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const etcdPrefix = "/function/"

// Etcd is a registry storing one JSON document per function under
// /function/<identifier>.
type Etcd struct {
	cli     *clientv3.Client
	timeout time.Duration
}

var _ Store = (*Etcd)(nil)

// DialEtcd connects to the given endpoints.
func DialEtcd(endpoints []string) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: connecting to etcd: %w", err)
	}
	return cli, nil
}

// NewEtcd wraps an etcd client. Each call is bounded by timeout.
func NewEtcd(cli *clientv3.Client, timeout time.Duration) *Etcd {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Etcd{cli: cli, timeout: timeout}
}

func etcdKey(identifier string) string {
	return etcdPrefix + identifier
}

func decodeEtcdValue(identifier string, raw []byte) (*core.FunctionDefinition, error) {
	var def core.FunctionDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("registry: decoding %s: %w", identifier, err)
	}
	if def.Identifier == "" {
		def.Identifier = identifier
	}
	return &def, nil
}

// Lookup reads /function/<identifier>.
func (e *Etcd) Lookup(ctx context.Context, identifier string) (*core.FunctionDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	resp, err := e.cli.Get(ctx, etcdKey(identifier))
	if err != nil {
		return nil, fmt.Errorf("registry: etcd get %s: %w", identifier, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("registry: %w: %s", core.ErrFunctionNotFound, identifier)
	}
	return decodeEtcdValue(identifier, resp.Kvs[0].Value)
}

// Put writes def as JSON.
func (e *Etcd) Put(ctx context.Context, def *core.FunctionDefinition) error {
	if err := validate(def); err != nil {
		return err
	}
	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("registry: encoding %s: %w", def.Identifier, err)
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if _, err := e.cli.Put(ctx, etcdKey(def.Identifier), string(payload)); err != nil {
		return fmt.Errorf("registry: etcd put %s: %w", def.Identifier, err)
	}
	return nil
}

// Delete removes /function/<identifier>.
func (e *Etcd) Delete(ctx context.Context, identifier string) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if _, err := e.cli.Delete(ctx, etcdKey(identifier)); err != nil {
		return fmt.Errorf("registry: etcd delete %s: %w", identifier, err)
	}
	return nil
}

// List returns identifiers under /function/.
func (e *Etcd) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	resp, err := e.cli.Get(ctx, etcdPrefix, clientv3.WithPrefix(), clientv3.WithKeysOnly(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("registry: etcd list: %w", err)
	}
	ids := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		ids = append(ids, strings.TrimPrefix(string(kv.Key), etcdPrefix))
	}
	return ids, nil
}
