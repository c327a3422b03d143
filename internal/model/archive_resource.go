package model

import "time"

// ArchiveResource 标识一个可加载的档案（数据库名 + 资源名）。
// 作为缓存键时只使用 (DatabaseName, ResourceName)。
type ArchiveResource struct {
	DatabaseName string    `json:"databaseName"`
	ResourceName string    `json:"resourceName"`
	LastModified time.Time `json:"lastModified"`
}

// ResourceKey 是 ArchiveResource 的可比较身份。
type ResourceKey struct {
	DatabaseName string
	ResourceName string
}

// Key 返回资源的身份键。
func (r ArchiveResource) Key() ResourceKey {
	return ResourceKey{DatabaseName: r.DatabaseName, ResourceName: r.ResourceName}
}

// String 返回 "database/resource" 形式的缓存键。
func (k ResourceKey) String() string {
	return k.DatabaseName + "/" + k.ResourceName
}

// SameResource 判断两个描述是否指向同一个档案，忽略修改时间。
func (r ArchiveResource) SameResource(other ArchiveResource) bool {
	return r.Key() == other.Key()
}
