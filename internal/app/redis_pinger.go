package app

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPinger adapts *redis.Client to the Pinger interface BuildReadinessChecks
// expects, mirroring the teacher's practice of wrapping a concrete driver
// client behind a narrow collaborator interface at the readiness boundary.
type RedisPinger struct{ Client *redis.Client }

func (p RedisPinger) Ping(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}
