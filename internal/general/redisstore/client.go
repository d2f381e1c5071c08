package redisstore

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"mech-dispatch/internal/general/config"
	"mech-dispatch/internal/general/logger"

	"github.com/redis/go-redis/v9"
)

// NewClient connects to Redis from cfg and verifies connectivity with a ping.
func NewClient(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Redis.Host, strconv.Itoa(cfg.Redis.Port)),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info(ctx, "redis_connected", "Connected to Redis", map[string]any{
		"host": cfg.Redis.Host,
		"port": cfg.Redis.Port,
		"db":   cfg.Redis.DB,
	})

	return client, nil
}
