package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/njala-api/internal/config"
	"github.com/njala-api/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "njala:lock:"
	defaultTTL    = 10 * time.Second
	defaultWait   = 3 * time.Second
	retryInterval = 25 * time.Millisecond
)

// ErrLockBusy is returned when the lock could not be acquired within the wait budget.
var ErrLockBusy = fmt.Errorf("resource busy, retry shortly: %w", domain.ErrTooManyRequests)

// releaseLua deletes the key only if it still holds our token, so an expired
// lock re-acquired by another holder is never released by us.
var releaseLua = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Locker is a distributed mutex keyed by string, built on SET NX PX.
type Locker struct {
	client *goredis.Client
	ttl    time.Duration
	wait   time.Duration
}

func NewClient(cfg *config.Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

func NewLocker(client *goredis.Client) *Locker {
	return &Locker{client: client, ttl: defaultTTL, wait: defaultWait}
}

// Lock blocks until key is acquired, ctx is done, or the wait budget runs out.
// The returned func releases the lock and is safe to call once.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	full := keyPrefix + key
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { l.release(full, token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

func (l *Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := releaseLua.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		slog.Warn("failed to release lock", "key", key, "err", err)
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
