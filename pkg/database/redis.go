package database

import (
	"context"
	"fmt"

	"docchat-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接。addr 为空时返回 nil，对话历史功能随之关闭。
func InitRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		log.Warnf("[Redis] 未配置地址，对话历史将不会保存")
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	RDB = client
	log.Info("Redis client connected successfully")
	return client, nil
}
