// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"archive-view-go/internal/config"
	"archive-view-go/internal/handler"
	"archive-view-go/internal/middleware"
	"archive-view-go/internal/model"
	"archive-view-go/internal/pipeline"
	"archive-view-go/internal/repository"
	"archive-view-go/internal/service"
	"archive-view-go/pkg/database"
	"archive-view-go/pkg/kafka"
	"archive-view-go/pkg/log"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis，均为可选
	opts := service.ManagerOptions{
		CollapseLevel: cfg.Archives.CollapseLevel,
		ListingTTL:    time.Duration(cfg.Archives.ListingCacheSeconds) * time.Second,
	}
	if cfg.Database.MySQL.DSN != "" {
		database.InitMySQL(cfg.Database.MySQL.DSN, &model.RecordArchiveLink{})
		opts.Links = repository.NewRecordLinkRepository(database.DB)
	}
	if cfg.Database.Redis.Addr != "" {
		database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		opts.Listings = repository.NewListingRepository(database.RDB)
	}

	// 4. 组装档案后端；配置错误时服务仍然启动并报告 CONFIGURATION_ERROR
	backend, err := buildBackend(&cfg)
	if err != nil {
		log.Errorf("[Server] 档案后端初始化失败: %v", err)
		opts.ConfigError = err
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager := service.NewArchiveManager(rootCtx, backend, opts)
	log.Infof("[Server] ArchiveManager 状态: %s", manager.State())

	// 5. 重新加载任务：配置了 Kafka 时异步处理，否则同步执行
	var enqueue handler.EnqueueFunc
	if kafka.Enabled(cfg.Kafka) {
		kafka.InitProducer(cfg.Kafka)
		enqueue = kafka.ProduceReloadTask
		go kafka.StartConsumer(rootCtx, cfg.Kafka, pipeline.NewProcessor(manager))
	}

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	apiV1 := r.Group("/api/v1")
	handler.NewArchiveHandler(manager, enqueue).RegisterRoutes(apiV1)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止 Kafka 消费者并关闭生产者
	cancel()
	if err := kafka.CloseProducer(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
