// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// ArchiveReloadTask 表示一次档案资源重新加载请求。
type ArchiveReloadTask struct {
	DatabaseName string    `json:"database_name"`
	ResourceName string    `json:"resource_name"`
	RequestedAt  time.Time `json:"requested_at"`
}

// Key 返回任务对应的资源键，用于失败计数。
func (t ArchiveReloadTask) Key() string {
	return t.DatabaseName + "/" + t.ResourceName
}
