package db

import (
	"context"

	"github.com/redis/go-redis/v9"
)

var RDB *redis.Client

// InitRedis takes the address explicitly; an empty address leaves RDB nil.
func InitRedis(addr string) {
	if addr == "" {
		return
	}
	RDB = redis.NewClient(&redis.Options{
		Addr: addr,
	})
}

func PingRedis() error {
	return RDB.Ping(context.Background()).Err()
}
