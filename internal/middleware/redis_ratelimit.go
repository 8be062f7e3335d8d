package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// incrWithExpiry はカウンタの加算と有効期限の設定を1回の往復でアトミックに行う。
// TTLのないキー（過去に期限設定が失敗したもの）にも期限を付け直す。
var incrWithExpiry = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisRateLimiter はRedisのカウンタによる固定ウィンドウ方式のレート制限。
// 複数インスタンス間で上限を共有する。Redisが利用できない場合は制限せずに通過させる。
type RedisRateLimiter struct {
	client      *redis.Client
	maxRequests int
	window      time.Duration
	prefix      string
}

// NewRedisClient はRedisクライアントを生成し疎通を確認する。
// addrが空、または疎通に失敗した場合はnilを返す。
func NewRedisClient(ctx context.Context, addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unavailable, shared rate limit disabled",
			slog.String("addr", addr),
			slog.String("error", err.Error()),
		)
		client.Close()
		return nil
	}

	slog.Info("redis rate limiter enabled", slog.String("addr", addr))
	return client
}

// NewRedisRateLimiter はRedisRateLimiterを生成する。clientがnilの場合は常に通過させる。
func NewRedisRateLimiter(client *redis.Client, prefix string, maxRequests int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:      client,
		maxRequests: maxRequests,
		window:      window,
		prefix:      prefix,
	}
}

// Allow はキーのカウンタを加算し、上限以内であればtrueを返す。
// Redisエラー時はtrueとエラーを返す。
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.client == nil {
		return true, nil
	}

	count, err := incrWithExpiry.Run(ctx, l.client,
		[]string{l.key(key)},
		l.window.Milliseconds(),
	).Int64()
	if err != nil {
		return true, err
	}
	return count <= int64(l.maxRequests), nil
}

// key はクライアントキーに対応するRedisのキー。
func (l *RedisRateLimiter) key(clientKey string) string {
	return "rl:" + l.prefix + ":" + strconv.FormatInt(int64(l.window.Seconds()), 10) + ":" + clientKey
}

// Middleware はRedisによるレート制限ミドルウェアを返す。
func (l *RedisRateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r)
			allowed, err := l.Allow(r.Context(), key)
			if err != nil {
				slog.Warn("redis rate limit check failed",
					slog.String("client", key),
					slog.String("error", err.Error()),
				)
			}
			if !allowed {
				writeTooManyRequests(w, int(l.window.Seconds()))
				slog.Warn("rate limit exceeded",
					slog.String("client", key),
					slog.String("limit_type", "redis_"+l.prefix),
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
