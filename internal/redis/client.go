package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options carries the connection settings the scheduler reads from config.
type Options struct {
	Addr     string
	Username string
	Password string
	PoolSize int // REDIS_POOL_SIZE; sized alongside PG_MAX_CONNS
}

// NewRedisClient connects the client used for practitioner locks and the
// readiness probe. Lock acquisition polls at a short interval, so the
// read/write timeouts stay well below the lock acquire timeout.
func NewRedisClient(opts Options) (*redis.Client, error) {
	if opts.PoolSize < 1 {
		opts.PoolSize = 1
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
