// Package database 负责建立 MySQL 与 Redis 连接。
package database

import (
	"fmt"
	"time"

	"archive-view-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// PoolConfig 是连接池参数。
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPool 是服务端使用的连接池参数。
var DefaultPool = PoolConfig{
	MaxIdleConns:    10,
	MaxOpenConns:    100,
	ConnMaxLifetime: time.Hour,
}

// Open 使用给定方言打开数据库，配置连接池并为给定的模型自动迁移表结构。
func Open(dialector gorm.Dialector, pool PoolConfig, models ...interface{}) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("自动迁移表结构失败: %w", err)
		}
	}
	return db, nil
}

// InitMySQL 初始化全局 MySQL 连接，失败时退出程序。
func InitMySQL(dsn string, models ...interface{}) {
	db, err := Open(mysql.Open(dsn), DefaultPool, models...)
	if err != nil {
		log.Fatal("初始化 MySQL 失败", err)
	}
	DB = db
	log.Info("MySQL 连接成功")
}
