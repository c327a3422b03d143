package repository

import (
	"context"
	"errors"

	"archive-view-go/internal/model"

	"gorm.io/gorm"
)

// RecordLinkRepository 定义了对 record_archive_links 表的数据操作接口。
type RecordLinkRepository interface {
	ReplaceForResource(ctx context.Context, resource model.ArchiveResource, links []*model.RecordArchiveLink) error
	FindByRecordPI(ctx context.Context, recordPI string) (*model.RecordArchiveLink, bool, error)
	CountForResource(ctx context.Context, resource model.ArchiveResource) (int64, error)
}

type recordLinkRepository struct {
	db *gorm.DB
}

// NewRecordLinkRepository 创建一个新的 RecordLinkRepository 实例。
func NewRecordLinkRepository(db *gorm.DB) RecordLinkRepository {
	return &recordLinkRepository{db: db}
}

// ReplaceForResource 在一个事务中删除资源已有的关联并写入新的关联。
func (r *recordLinkRepository) ReplaceForResource(ctx context.Context, resource model.ArchiveResource, links []*model.RecordArchiveLink) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("database_name = ? AND resource_name = ?", resource.DatabaseName, resource.ResourceName).
			Delete(&model.RecordArchiveLink{}).Error
		if err != nil {
			return err
		}
		if len(links) == 0 {
			return nil
		}
		for _, l := range links {
			l.DatabaseName = resource.DatabaseName
			l.ResourceName = resource.ResourceName
		}
		return tx.CreateInBatches(links, 100).Error // 每100条记录一批
	})
}

// FindByRecordPI 查找记录最近一次写入的关联，不存在时返回 false。
func (r *recordLinkRepository) FindByRecordPI(ctx context.Context, recordPI string) (*model.RecordArchiveLink, bool, error) {
	var link model.RecordArchiveLink
	err := r.db.WithContext(ctx).Where("record_pi = ?", recordPI).Order("updated_at DESC, id DESC").First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &link, true, nil
}

// CountForResource 返回资源当前的关联数量。
func (r *recordLinkRepository) CountForResource(ctx context.Context, resource model.ArchiveResource) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.RecordArchiveLink{}).
		Where("database_name = ? AND resource_name = ?", resource.DatabaseName, resource.ResourceName).
		Count(&n).Error
	return n, err
}
