package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"skolar/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	releaseTimeout = 5 * time.Second
	renewTimeout   = 5 * time.Second
)

// releaseScript deletes the lock only while it still carries our token, so an
// expired-and-retaken lock is never released by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only while it still carries our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisSyncGuard is a single-flight lock shared by every process that points
// at the same redis and queue file.
type RedisSyncGuard struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zerolog.Logger
}

// NewRedisClient builds a client from the redis config section.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisSyncGuard(client *redis.Client, key string, ttl time.Duration, logger *zerolog.Logger) *RedisSyncGuard {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RedisSyncGuard{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: logger,
	}
}

func (g *RedisSyncGuard) TryAcquire(ctx context.Context) (func(), bool, error) {
	if g.client == nil {
		return nil, false, fmt.Errorf("redis client is nil")
	}

	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go g.renew(context.WithoutCancel(ctx), token, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			// The pass may have been cancelled; the lock must still go.
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			if err := releaseScript.Run(rctx, g.client, []string{g.key}, token).Err(); err != nil {
				g.logger.Warn().Err(err).Str("key", g.key).Msg("failed to release sync lock, it will expire")
			}
		})
	}
	return release, true, nil
}

// renew keeps the lease alive for as long as the pass runs. It refreshes
// at a third of the TTL and stops when the lock is lost or released.
func (g *RedisSyncGuard) renew(ctx context.Context, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := g.ttl / 3
	if interval <= 0 {
		<-stop
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rctx, cancel := context.WithTimeout(ctx, renewTimeout)
			n, err := renewScript.Run(rctx, g.client, []string{g.key}, token, g.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				g.logger.Warn().Err(err).Str("key", g.key).Msg("failed to renew sync lock")
				continue
			}
			if n == 0 {
				g.logger.Error().Str("key", g.key).Msg("sync lock lost before the pass finished")
				<-stop
				return
			}
		}
	}
}

// Ping checks that redis answers.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the client; a nil client is a no-op.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
