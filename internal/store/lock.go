package store

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/google/uuid"

	"github.com/rendis/flowgraph/pkg/schema"
)

// DefaultLockTTL bounds how long a crashed holder can keep a key.
const DefaultLockTTL = 30 * time.Second

func lockedErr(key string) error {
	return schema.NewErrorf(schema.ErrCodeLocked, "%s is locked by another caller", key)
}

func lostErr(key string) error {
	return schema.NewErrorf(schema.ErrCodeLocked, "lock on %s expired and was lost", key)
}

// MemoryLocker is a process-local Locker. Expired holds are taken over.
type MemoryLocker struct {
	mu    sync.Mutex
	holds map[string]memoryHold
	now   func() time.Time
}

type memoryHold struct {
	token   string
	expires time.Time
}

// NewMemoryLocker creates an empty locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{holds: make(map[string]memoryHold), now: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, held := l.holds[key]; held && now.Before(h.expires) {
		return nil, lockedErr(key)
	}
	token := uuid.NewString()
	l.holds[key] = memoryHold{token: token, expires: now.Add(ttl)}
	return &memoryLease{locker: l, key: key, token: token, ttl: ttl}, nil
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	token  string
	ttl    time.Duration
	once   sync.Once
}

func (m *memoryLease) Extend(context.Context) error {
	l := m.locker
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holds[m.key]
	if !ok || h.token != m.token {
		return lostErr(m.key)
	}
	h.expires = l.now().Add(m.ttl)
	l.holds[m.key] = h
	return nil
}

func (m *memoryLease) Release() {
	m.once.Do(func() {
		l := m.locker
		l.mu.Lock()
		defer l.mu.Unlock()
		if h, ok := l.holds[m.key]; ok && h.token == m.token {
			delete(l.holds, m.key)
		}
	})
}

// RedisClient is the subset of the go-redis client used by RedisLocker.
// *redis.Client and redis.UniversalClient satisfy it.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// extendScript resets the expiry only while the key still holds our token.
const extendScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`

// RedisLocker is a Locker shared by every process using the same Redis.
type RedisLocker struct {
	client    RedisClient
	namespace string
}

// NewRedisLocker creates a locker storing keys under namespace.
func NewRedisLocker(client RedisClient, namespace string) *RedisLocker {
	if namespace == "" {
		namespace = "flowgraph"
	}
	return &RedisLocker{client: client, namespace: namespace}
}

// NewRedisClient connects to the given addresses the way the locker expects.
func NewRedisClient(addrs ...string) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{Addrs: addrs})
}

func (l *RedisLocker) lockKey(key string) string {
	return l.namespace + ":lock:" + key
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	redisKey := l.lockKey(key)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "acquire lock %s", key).WithCause(err)
	}
	if !ok {
		return nil, lockedErr(key)
	}
	return &redisLease{client: l.client, key: key, redisKey: redisKey, token: token, ttl: ttl}, nil
}

type redisLease struct {
	client   RedisClient
	key      string
	redisKey string
	token    string
	ttl      time.Duration
	once     sync.Once
}

func (r *redisLease) Extend(ctx context.Context) error {
	n, err := r.client.Eval(ctx, extendScript, []string{r.redisKey}, r.token, r.ttl.Milliseconds()).Int64()
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "extend lock %s", r.key).WithCause(err)
	}
	if n == 0 {
		return lostErr(r.key)
	}
	return nil
}

func (r *redisLease) Release() {
	r.once.Do(func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.client.Eval(rctx, releaseScript, []string{r.redisKey}, r.token).Err()
	})
}
