package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultViewDedupWindow 是同一访客重复浏览同一文章时不计数的时间窗口。
const DefaultViewDedupWindow = 30 * time.Minute

const (
	viewKeyPrefix    = "sitelog:view:"
	memorySweepEvery = 1024
)

// ViewDeduper decides whether a visitor's view of a post should be counted.
type ViewDeduper interface {
	// ShouldCount records the view and reports whether it falls outside the window.
	ShouldCount(ctx context.Context, visitorID, postKey string) (bool, error)
}

// NewViewDeduper 根据配置选择实现：窗口为 0 时不去重，配置了 Redis 客户端时跨进程共享。
func NewViewDeduper(window time.Duration, client *redis.Client) ViewDeduper {
	switch {
	case window <= 0:
		return countAll{}
	case client != nil:
		return NewRedisViewDeduper(client, window)
	default:
		return NewMemoryViewDeduper(window)
	}
}

type countAll struct{}

func (countAll) ShouldCount(context.Context, string, string) (bool, error) { return true, nil }

// MemoryViewDeduper keeps the last counted view per visitor and post in process memory.
type MemoryViewDeduper struct {
	mu      sync.Mutex
	window  time.Duration
	seen    map[string]time.Time
	now     func() time.Time
	inserts int
}

// NewMemoryViewDeduper 创建进程内去重器。
func NewMemoryViewDeduper(window time.Duration) *MemoryViewDeduper {
	return &MemoryViewDeduper{window: window, seen: make(map[string]time.Time), now: time.Now}
}

// ShouldCount implements ViewDeduper.
func (d *MemoryViewDeduper) ShouldCount(_ context.Context, visitorID, postKey string) (bool, error) {
	if visitorID == "" {
		return true, nil
	}

	key := visitorID + "|" + postKey
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.seen[key]; ok && now.Sub(last) < d.window {
		return false, nil
	}
	d.seen[key] = now

	d.inserts++
	if d.inserts >= memorySweepEvery {
		d.inserts = 0
		for k, at := range d.seen {
			if now.Sub(at) >= d.window {
				delete(d.seen, k)
			}
		}
	}
	return true, nil
}

// RedisViewDeduper stores one key per visitor and post with the window as TTL.
type RedisViewDeduper struct {
	client *redis.Client
	window time.Duration
}

// NewRedisViewDeduper 创建基于 Redis SET NX 的去重器。
func NewRedisViewDeduper(client *redis.Client, window time.Duration) *RedisViewDeduper {
	return &RedisViewDeduper{client: client, window: window}
}

// ShouldCount implements ViewDeduper.
func (d *RedisViewDeduper) ShouldCount(ctx context.Context, visitorID, postKey string) (bool, error) {
	if visitorID == "" {
		return true, nil
	}
	key := fmt.Sprintf("%s%s:%s", viewKeyPrefix, postKey, visitorID)
	created, err := d.client.SetNX(ctx, key, 1, d.window).Result()
	if err != nil {
		return false, fmt.Errorf("view dedup: %w", err)
	}
	return created, nil
}

// ConnectRedis creates a client and verifies it with a ping.
func ConnectRedis(addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis connected", "addr", addr)
	return client, nil
}
