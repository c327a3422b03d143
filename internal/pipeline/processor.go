// Package pipeline 定义了档案重新加载任务的处理流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"archive-view-go/pkg/log"
	"archive-view-go/pkg/tasks"
)

// Reloader 是处理器依赖的重新加载能力，由 service.ArchiveManager 实现。
type Reloader interface {
	Reload(ctx context.Context, database, resource string) error
}

// Processor 封装了重新加载任务的依赖和逻辑。
type Processor struct {
	reloader Reloader
	now      func() time.Time
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(reloader Reloader) *Processor {
	return &Processor{reloader: reloader, now: time.Now}
}

// Process 执行一次重新加载任务。
func (p *Processor) Process(ctx context.Context, task tasks.ArchiveReloadTask) error {
	if task.DatabaseName == "" || task.ResourceName == "" {
		log.Warnf("[Processor] 任务缺少数据库或资源名, 忽略: %+v", task)
		return errors.New("任务缺少数据库或资源名")
	}
	if !task.RequestedAt.IsZero() {
		log.Infof("[Processor] 开始重新加载 %s, 排队耗时 %s", task.Key(), p.now().Sub(task.RequestedAt).Round(time.Millisecond))
	} else {
		log.Infof("[Processor] 开始重新加载 %s", task.Key())
	}

	if err := p.reloader.Reload(ctx, task.DatabaseName, task.ResourceName); err != nil {
		log.Errorf("[Processor] 重新加载 %s 失败, Error: %v", task.Key(), err)
		return fmt.Errorf("处理重新加载任务失败: %w", err)
	}
	log.Infof("[Processor] 重新加载 %s 成功", task.Key())
	return nil
}
