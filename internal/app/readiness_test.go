package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/fs"
	"github.com/legout/flowerpower/internal/registry"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestBuildReadinessChecks_MemoryBackendSkipsBroker(t *testing.T) {
	brokerCheck, _ := BuildReadinessChecks(config.JobQueueConfig{Type: config.BackendMemory}, nil, nil)
	require.NoError(t, brokerCheck(context.Background()))
}

func TestBuildReadinessChecks_RedisBackendRequiresBroker(t *testing.T) {
	brokerCheck, _ := BuildReadinessChecks(config.JobQueueConfig{Type: config.BackendRedis}, nil, nil)
	require.Error(t, brokerCheck(context.Background()))
}

func TestBuildReadinessChecks_RedisBackendPingsBroker(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	brokerCheck, _ := BuildReadinessChecks(config.JobQueueConfig{Type: config.BackendRedis}, RedisPinger{Client: client}, nil)
	require.NoError(t, brokerCheck(context.Background()))

	srv.Close()
	require.Error(t, brokerCheck(context.Background()))
}

func TestBuildReadinessChecks_BrokerError(t *testing.T) {
	brokerCheck, _ := BuildReadinessChecks(config.JobQueueConfig{Type: config.BackendRedis}, fakePinger{err: context.DeadlineExceeded}, nil)
	require.Error(t, brokerCheck(context.Background()))
}

func TestBuildReadinessChecks_RegistryNil(t *testing.T) {
	_, registryCheck := BuildReadinessChecks(config.JobQueueConfig{}, nil, nil)
	require.Error(t, registryCheck(context.Background()))
}

func TestBuildReadinessChecks_RegistryListable(t *testing.T) {
	memfs := fs.NewMemory()
	reg := registry.New(memfs, "pipelines", "conf", "hooks")
	require.NoError(t, memfs.MkdirAll("pipelines", 0o755))

	_, registryCheck := BuildReadinessChecks(config.JobQueueConfig{}, nil, reg)
	require.NoError(t, registryCheck(context.Background()))
}
