package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/fir-api/pkg/config"
)

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "fir"

// NewRedis returns a configured Redis client. The caller decides whether a
// failed ping is fatal; the service degrades to in-process state without Redis.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", client.Options().Addr, err)
	}

	return client, nil
}

// Key joins parts under KeyPrefix, e.g. Key("stations", "all") == "fir:stations:all".
func Key(parts ...string) string {
	return KeyPrefix + ":" + strings.Join(parts, ":")
}
