// Package discovery announces running API instances in etcd.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/example/storefront/pkg/config"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

type Instance struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (i *Instance) Addr() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

// Registry holds one etcd client and the lease of the instance it
// registered, if any.
type Registry struct {
	client *clientv3.Client
	config *config.EtcdConfig
	logger *zap.Logger

	mu    sync.Mutex
	lease clientv3.LeaseID
	key   string
}

func NewRegistry(cfg *config.EtcdConfig, logger *zap.Logger) (*Registry, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return &Registry{client: cli, config: cfg, logger: logger}, nil
}

func servicePrefix(prefix, name string) string {
	return fmt.Sprintf("%s%s/", prefix, name)
}

func instanceKey(prefix string, in *Instance) string {
	return servicePrefix(prefix, in.Name) + in.Addr()
}

func parseInstance(name, value string) (*Instance, error) {
	host, port, err := net.SplitHostPort(strings.TrimSpace(value))
	if err != nil {
		return nil, err
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in %q: %w", value, err)
	}
	return &Instance{Name: name, Host: host, Port: p}, nil
}

// Register puts in under a lease and keeps the lease alive until ctx is
// cancelled or Deregister is called.
func (r *Registry) Register(ctx context.Context, in *Instance) error {
	ttl := r.config.LeaseTTL
	if ttl <= 0 {
		ttl = 30
	}
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	key := instanceKey(r.config.Prefix, in)
	if _, err := r.client.Put(ctx, key, in.Addr(), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register %s: %w", in.Name, err)
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("failed to keep lease alive: %w", err)
	}

	r.mu.Lock()
	r.lease, r.key = lease.ID, key
	r.mu.Unlock()

	go func() {
		for range ch {
		}
		r.logger.Warn("etcd lease keep-alive stopped", zap.String("key", key))
	}()
	return nil
}

// Instances lists the live instances registered under name.
func (r *Registry) Instances(ctx context.Context, name string) ([]*Instance, error) {
	resp, err := r.client.Get(ctx, servicePrefix(r.config.Prefix, name), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s instances: %w", name, err)
	}

	instances := make([]*Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		in, err := parseInstance(name, string(kv.Value))
		if err != nil {
			r.logger.Warn("Skipping malformed registration", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, in)
	}
	return instances, nil
}

// Deregister revokes the lease, which removes the key at once.
func (r *Registry) Deregister(ctx context.Context) error {
	r.mu.Lock()
	lease, key := r.lease, r.key
	r.lease, r.key = 0, ""
	r.mu.Unlock()

	if lease == 0 {
		return nil
	}
	if _, err := r.client.Revoke(ctx, lease); err != nil {
		return fmt.Errorf("failed to deregister %s: %w", key, err)
	}
	return nil
}

func (r *Registry) Close() error {
	return r.client.Close()
}
