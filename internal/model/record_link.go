package model

import "time"

// RecordArchiveLink 对应 'record_archive_links' 表，记录数字化记录与档案节点之间的关联。
type RecordArchiveLink struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RecordPI     string    `gorm:"type:varchar(255);not null;index" json:"recordPi"`
	NodeID       string    `gorm:"type:varchar(255);not null" json:"nodeId"`
	DatabaseName string    `gorm:"type:varchar(255);not null;index:idx_resource" json:"databaseName"`
	ResourceName string    `gorm:"type:varchar(255);not null;index:idx_resource" json:"resourceName"`
	HasImage     bool      `gorm:"not null;default:false" json:"hasImage"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (RecordArchiveLink) TableName() string {
	return "record_archive_links"
}

// Resource 返回该关联所在的档案资源描述。
func (l RecordArchiveLink) Resource() ArchiveResource {
	return ArchiveResource{DatabaseName: l.DatabaseName, ResourceName: l.ResourceName}
}
