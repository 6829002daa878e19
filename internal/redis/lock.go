package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clinicore/clinic-scheduler/internal/schedule"
)

const acquireRetryInterval = 25 * time.Millisecond

type redisPractitionerLocker struct {
	client  *redis.Client
	ttl     time.Duration
	acquire time.Duration
}

// NewRedisPractitionerLocker returns a schedule.Locker backed by a per
// practitioner Redis key. Acquisition polls SetNX until acquireTimeout so
// contended bookings queue rather than fail spuriously; the key TTL bounds
// how long a crashed holder can wedge a practitioner.
func NewRedisPractitionerLocker(client *redis.Client, ttl, acquireTimeout time.Duration) schedule.Locker {
	return &redisPractitionerLocker{
		client:  client,
		ttl:     ttl,
		acquire: acquireTimeout,
	}
}

func (l *redisPractitionerLocker) WithPractitionerLock(ctx context.Context, practitionerID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:practitioner:%s", practitionerID.String())
	token := uuid.NewString()

	acquireCtx, cancelAcquire := context.WithTimeout(ctx, l.acquire)
	defer cancelAcquire()

	for {
		ok, err := l.client.SetNX(acquireCtx, key, token, l.ttl).Result()
		if err != nil {
			if acquireCtx.Err() != nil {
				return schedule.ErrLockNotAcquired
			}
			return fmt.Errorf("acquire practitioner lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-acquireCtx.Done():
			return schedule.ErrLockNotAcquired
		case <-time.After(acquireRetryInterval):
		}
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisPractitionerLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release practitioner lock: %w", err)
	}
	return nil
}
