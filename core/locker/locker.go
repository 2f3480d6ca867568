package locker

import (
	"context"
	"errors"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gofrs/uuid/v5"

	"incidentscope/config"
)

// ErrNotAcquired is returned when another holder owns the lock.
var ErrNotAcquired = errors.New("lock is held by another owner")

// releaseScript deletes the key only when it still carries our token,
// so a lock that expired and was reacquired elsewhere is never released
// by the previous holder.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Locker is a single-holder distributed lock on Redis. It serializes
// schema migrations when several service replicas start at once.
type Locker struct {
	client *goredis.Client
	ttl    time.Duration
}

func New(cfg *config.AppConfig) *Locker {
	return &Locker{
		client: goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}),
		ttl: cfg.Redis.LockTTL,
	}
}

// Lock is a held lock. Release it with its own token.
type Lock struct {
	key   string
	token string
}

// Acquire takes the lock or returns ErrNotAcquired immediately.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	token, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	ok, err := l.client.SetNX(ctx, key, token.String(), l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lock{key: key, token: token.String()}, nil
}

// AcquireWithRetry polls for the lock until it is taken or ctx ends.
// Replicas that lose the race wait here while the winner migrates.
func (l *Locker) AcquireWithRetry(ctx context.Context, key string, interval time.Duration) (*Lock, error) {
	for {
		lock, err := l.Acquire(ctx, key)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Release frees the lock if this holder still owns it. Releasing a lock
// that already expired is not an error.
func (l *Locker) Release(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}
	return l.client.Eval(ctx, releaseScript, []string{lock.key}, lock.token).Err()
}

func (l *Locker) Close() error {
	return l.client.Close()
}
