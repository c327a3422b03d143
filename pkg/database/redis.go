package database

import (
	"context"
	"fmt"
	"time"

	"archive-view-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

var RDB *redis.Client

// pingTimeout 限制启动时检测 Redis 连接的耗时。
const pingTimeout = 3 * time.Second

// OpenRedis 创建 Redis 客户端并检测连接，失败时关闭客户端。
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis %s 失败: %w", addr, err)
	}
	return client, nil
}

// InitRedis 初始化全局 Redis 客户端，失败时退出程序。
func InitRedis(addr, password string, db int) {
	client, err := OpenRedis(context.Background(), addr, password, db)
	if err != nil {
		log.Fatal("初始化 Redis 失败", err)
	}
	RDB = client
	log.Info("Redis 连接成功")
}
