package aichat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const gateKeyPrefix = "campusconnect:aichat:"

// Gate はアカウントごとのリクエスト間隔を制御する。
type Gate interface {
	// Allow は accountID のリクエストを受け付ける場合にtrueを返す。
	Allow(ctx context.Context, accountID string) (bool, error)
}

// setNXer はRedisGateが使用するredisクライアントの部分集合。
type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisGate はRedisの SET NX EX で間隔を制御する。複数プロセス間で共有される。
type RedisGate struct {
	client   setNXer
	interval time.Duration
}

// NewRedisGate はRedisGateを生成する。
func NewRedisGate(client setNXer, interval time.Duration) *RedisGate {
	return &RedisGate{client: client, interval: interval}
}

// ConnectRedis はURLからredisクライアントを生成し、疎通を確認する。
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

// Allow はキーが存在しない場合のみ設定し、設定できたらtrueを返す。
func (g *RedisGate) Allow(ctx context.Context, accountID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, gateKeyPrefix+accountID, time.Now().Unix(), g.interval).Result()
	if err != nil {
		return false, fmt.Errorf("AIチャット間隔の確認に失敗しました: %w", err)
	}
	return ok, nil
}

// pruneThreshold を超えたら古いエントリを掃除する。
const pruneThreshold = 10000

type localEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// LocalGate はプロセス内のトークンバケットで間隔を制御する。REDIS_URL未設定時に使用する。
type LocalGate struct {
	mu       sync.Mutex
	entries  map[string]*localEntry
	interval time.Duration
	now      func() time.Time
}

// NewLocalGate はLocalGateを生成する。
func NewLocalGate(interval time.Duration) *LocalGate {
	return &LocalGate{
		entries:  make(map[string]*localEntry),
		interval: interval,
		now:      time.Now,
	}
}

// Allow は前回の受け付けから interval 経過していればtrueを返す。
func (g *LocalGate) Allow(_ context.Context, accountID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if len(g.entries) > pruneThreshold {
		for id, e := range g.entries {
			if now.Sub(e.seen) > g.interval {
				delete(g.entries, id)
			}
		}
	}

	e, ok := g.entries[accountID]
	if !ok {
		e = &localEntry{limiter: rate.NewLimiter(rate.Every(g.interval), 1)}
		g.entries[accountID] = e
	}
	e.seen = now
	return e.limiter.AllowN(now, 1), nil
}

// compile-time interface check
var (
	_ Gate = (*RedisGate)(nil)
	_ Gate = (*LocalGate)(nil)
)
