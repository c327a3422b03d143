// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"archive-view-go/internal/config"
	"archive-view-go/pkg/database"
	"archive-view-go/pkg/log"
	"archive-view-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

const (
	defaultGroupID = "archive-view-go-consumer"
	maxAttempts    = 3
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ArchiveReloadTask) error
}

var producer *kafka.Writer

// Enabled 报告配置中是否启用了 Kafka。
func Enabled(cfg config.KafkaConfig) bool {
	return strings.TrimSpace(cfg.Brokers) != "" && strings.TrimSpace(cfg.Topic) != ""
}

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(splitBrokers(cfg.Brokers)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// CloseProducer 关闭生产者。
func CloseProducer() error {
	if producer == nil {
		return nil
	}
	return producer.Close()
}

// ProduceReloadTask 发送一个档案重新加载任务到 Kafka。
func ProduceReloadTask(ctx context.Context, task tasks.ArchiveReloadTask) error {
	if producer == nil {
		return errors.New("Kafka 生产者未初始化")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return producer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(task.Key()),
			Value: taskBytes,
		},
	)
}

// StartConsumer 启动一个 Kafka 消费者来处理重新加载任务，ctx 取消时退出。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = defaultGroupID
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  splitBrokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	var counter attemptCounter = newMemoryCounter()
	if database.RDB != nil {
		counter = redisCounter{client: database.RDB}
	}

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}
		log.Infof("收到 Kafka 消息: offset %d", m.Offset)
		handleMessage(ctx, r, counter, processor, m)
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// retryDelay 是同一条消息两次处理之间的基础等待时间，按已失败次数线性增长。
var retryDelay = 2 * time.Second

// handleMessage 处理单条消息。成功或格式错误时提交 offset；
// 失败时在进程内重试，累计达到 maxAttempts 后提交 offset 终止重试。
// ctx 取消时不提交，重启后从该消息继续，已失败次数保存在计数器中。
func handleMessage(ctx context.Context, c committer, counter attemptCounter, processor TaskProcessor, m kafka.Message) {
	commit := func() {
		if err := c.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	var task tasks.ArchiveReloadTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		commit()
		return
	}

	log.Infof("开始处理重新加载任务: %s", task.Key())
	attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.Key())
	var local int64
	for {
		err := processor.Process(ctx, task)
		if err == nil {
			log.Infof("重新加载任务处理成功: %s", task.Key())
			counter.Reset(ctx, attemptsKey)
			commit()
			return
		}
		log.Errorf("处理重新加载任务失败: %s, Error: %v", task.Key(), err)

		local++
		attempts, incErr := counter.Incr(ctx, attemptsKey)
		if incErr != nil {
			log.Warnf("记录任务失败次数失败, 使用进程内计数: %v", incErr)
			attempts = local
		}
		if attempts >= maxAttempts {
			log.Errorf("重新加载任务多次失败(>=%d)，提交 offset 终止重试: %s", maxAttempts, task.Key())
			counter.Reset(ctx, attemptsKey)
			commit()
			return
		}

		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay * time.Duration(attempts)):
		}
	}
}

type attemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string)
}

type redisCounter struct {
	client *redis.Client
}

func (c redisCounter) Incr(ctx context.Context, key string) (int64, error) {
	attempts, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.client.Expire(ctx, key, 24*time.Hour).Err()
	return attempts, nil
}

func (c redisCounter) Reset(ctx context.Context, key string) {
	_ = c.client.Del(ctx, key).Err()
}

// memoryCounter 在未配置 Redis 时使用，计数只在当前进程内有效。
type memoryCounter struct {
	mu       sync.Mutex
	attempts map[string]int64
}

func newMemoryCounter() *memoryCounter {
	return &memoryCounter{attempts: make(map[string]int64)}
}

func (c *memoryCounter) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[key]++
	return c.attempts[key], nil
}

func (c *memoryCounter) Reset(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, key)
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
