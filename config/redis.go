package config

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

var RedisClient *redis.Client

// InitRedis accepts a host:port address or a redis:// URL.
func InitRedis(cfg RedisConfig) error {
	val := cfg.Addr
	if val == "" {
		return errors.New("redis address is not set (REDIS_ADDR/REDIS_URI/REDIS_URL or [redis].addr)")
	}

	if strings.HasPrefix(val, "redis://") || strings.HasPrefix(val, "rediss://") {
		opt, err := redis.ParseURL(val)
		if err != nil {
			return err
		}
		RedisClient = redis.NewClient(opt)
	} else {
		RedisClient = redis.NewClient(&redis.Options{Addr: val})
	}

	_, err := RedisClient.Ping(context.Background()).Result()
	return err
}
