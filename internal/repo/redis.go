package repo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"TrainAI/config"
	"TrainAI/utils"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrLockBusy = errors.New("lock is busy")

// Lock is a mutual-exclusion lease on one key.
type Lock interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Locker creates locks. Redis backs it in production; MemoryLocker serves
// a single process.
type Locker interface {
	NewLock(key string, ttl time.Duration) Lock
}

// InitRedis connects to Redis and pings it.
func InitRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "init redis")
	}
	return client, nil
}

// EnableKeyspaceNotifications enables expired-key events.
func EnableKeyspaceNotifications(ctx context.Context, rdb *redis.Client) error {
	return rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
}

type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) NewLock(key string, ttl time.Duration) Lock {
	return NewRedisLock(l.rdb, key, ttl)
}

type RedisLock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

// NewRedisLock creates a Redis lock helper.
func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		rdb: rdb,
		key: key,
		ttl: ttl,
	}
}

// Lock acquires the lock or returns ErrLockBusy.
func (l *RedisLock) Lock(ctx context.Context) error {
	token := utils.GetToken()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockBusy
	}
	l.token = token
	return nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Unlock releases the lock if this holder still owns it.
func (l *RedisLock) Unlock(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	_, err := unlockScript.Run(
		ctx,
		l.rdb,
		[]string{l.key},
		l.token,
	).Result()
	l.token = ""
	return err
}

// MemoryLocker hands out process-local locks with the same TTL semantics.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]memLease
}

type memLease struct {
	token   string
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memLease)}
}

func (l *MemoryLocker) NewLock(key string, ttl time.Duration) Lock {
	return &memoryLock{locker: l, key: key, ttl: ttl}
}

type memoryLock struct {
	locker *MemoryLocker
	key    string
	ttl    time.Duration
	token  string
}

func (m *memoryLock) Lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()
	now := time.Now()
	if lease, ok := m.locker.held[m.key]; ok && now.Before(lease.expires) {
		return ErrLockBusy
	}
	m.token = utils.GetToken()
	m.locker.held[m.key] = memLease{token: m.token, expires: now.Add(m.ttl)}
	return nil
}

func (m *memoryLock) Unlock(ctx context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()
	if lease, ok := m.locker.held[m.key]; ok && lease.token == m.token {
		delete(m.locker.held, m.key)
	}
	m.token = ""
	return nil
}

// ExpiredSessionHandler is called for every upload session key that expires.
type ExpiredSessionHandler func(ctx context.Context, ownerID, sessionID string)

// ListenRedisExpired subscribes to expired-key events of db and dispatches
// upload session expiries. ready is closed once the subscription is live.
func ListenRedisExpired(ctx context.Context, rdb *redis.Client, db int, logger *zap.Logger, ready chan<- struct{}, onSession ExpiredSessionHandler) error {
	pubsub := rdb.Subscribe(ctx, fmt.Sprintf("__keyevent@%d__:expired", db))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return errors.Wrap(err, "subscribe expired events")
	}
	close(ready)
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handleExpiredKey(ctx, msg.Payload, logger, onSession)
		}
	}
}

// handleExpiredKey dispatches expired-key handlers.
func handleExpiredKey(ctx context.Context, key string, logger *zap.Logger, onSession ExpiredSessionHandler) {
	switch {
	case strings.HasPrefix(key, sessionKeyPrefix):
		ownerID, sessionID, ok := ParseSessionKey(key)
		if !ok {
			logger.Warn("malformed session key expired", zap.String("key", key))
			return
		}
		logger.Info("upload session expired",
			zap.String("owner_id", ownerID),
			zap.String("session_id", sessionID),
		)
		onSession(ctx, ownerID, sessionID)
	default:
	}
}
