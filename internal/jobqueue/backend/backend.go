// Package backend implements JobQueueBackend (C8): ownership of the broker
// connection, independent of what drives jobs off it. Redis, Memory backend.
package backend

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/domain"
)

// Backend owns the connection lifecycle a JobQueueManager implementation
// drives (spec §4.8).
type Backend interface {
	// Client returns the lazily-initialized client handle: *redis.Client for
	// the Redis backend, nil for Memory (callers type-switch as needed).
	Client(ctx context.Context) (any, error)
	Queues() []string
	NumWorkers() int
	Capabilities() domain.BackendCapabilities
	Close() error
}

// Redis is the production backend, wrapping github.com/redis/go-redis/v9
// (also what github.com/hibiken/asynq uses under the hood, so the same
// *redis.Client options serve both the asynqjq manager and direct
// introspection queries).
type Redis struct {
	cfg    config.JobQueueConfig
	client *redis.Client
}

var _ Backend = (*Redis)(nil)

// NewRedis constructs a Redis backend from connection settings (spec
// §4.8's {host, port, database, username, password, tls, cert bundle}).
func NewRedis(cfg config.JobQueueConfig) (*Redis, error) {
	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.BackendHost, cfg.BackendPort),
		DB:       cfg.BackendDB,
		Username: cfg.BackendUsername,
		Password: cfg.BackendPassword,
	}
	if cfg.BackendTLS {
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.BackendCertFile != "" {
			pem, err := os.ReadFile(cfg.BackendCertFile)
			if err != nil {
				return nil, fmt.Errorf("op=backend.NewRedis: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("op=backend.NewRedis: %w: invalid cert bundle %s", domain.ErrInvalidArgument, cfg.BackendCertFile)
			}
			tlsCfg.RootCAs = pool
		}
		opts.TLSConfig = tlsCfg
	}
	return &Redis{cfg: cfg, client: redis.NewClient(opts)}, nil
}

// NewRedisWithClient wraps an already-constructed client — used by tests
// wiring a miniredis-backed *redis.Client.
func NewRedisWithClient(cfg config.JobQueueConfig, client *redis.Client) *Redis {
	return &Redis{cfg: cfg, client: client}
}

func (r *Redis) Client(context.Context) (any, error) { return r.client, nil }
func (r *Redis) Queues() []string                    { return r.cfg.Queues }
func (r *Redis) NumWorkers() int                      { return r.cfg.NumWorkers }
func (r *Redis) Close() error                        { return r.client.Close() }

func (r *Redis) Capabilities() domain.BackendCapabilities {
	return domain.BackendCapabilities{
		SupportsScheduling:      true,
		SupportsPriorities:      true,
		SupportsWorkerControl:   true,
		SupportsCancellation:    true,
		SupportsQueueInspection: true,
		SupportsResultFetching:  true,
		SupportsWorkerStats:     true,
	}
}

// RedisOptions exposes the underlying *redis.Options, used by asynqjq to
// build an asynq.RedisClientOpt from the same settings.
func (r *Redis) RedisOptions() *redis.Options { return r.client.Options() }

// Memory is the in-process test/single-node backend (spec §4.8's "memory,
// a local mapping"). It advertises every capability except priorities,
// with reduced durability — state does not survive process restart.
type Memory struct {
	cfg config.JobQueueConfig
}

var _ Backend = (*Memory)(nil)

// NewMemory constructs a Memory backend.
func NewMemory(cfg config.JobQueueConfig) *Memory { return &Memory{cfg: cfg} }

func (m *Memory) Client(context.Context) (any, error) { return nil, nil }
func (m *Memory) Queues() []string                    { return m.cfg.Queues }
func (m *Memory) NumWorkers() int                      { return m.cfg.NumWorkers }
func (m *Memory) Close() error                        { return nil }

func (m *Memory) Capabilities() domain.BackendCapabilities {
	return domain.BackendCapabilities{
		SupportsScheduling:      true,
		SupportsPriorities:      false,
		SupportsWorkerControl:   true,
		SupportsCancellation:    true,
		SupportsQueueInspection: true,
		SupportsResultFetching:  true,
		SupportsWorkerStats:     true,
	}
}
