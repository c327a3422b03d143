// Package parser 把后端中的 EAD 档案资源解析为 ArchiveEntry 树。
//
// 支持两类后端：XML 数据库（BaseX、MinIO 或本地目录中的 EAD 文档，
// 递归下降解析嵌套元素）和文档索引（Elasticsearch 中按父子关联存储的扁平文档）。
package parser

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"archive-view-go/internal/archiveerr"
	"archive-view-go/internal/model"
	"archive-view-go/pkg/log"
)

// Parser 从后端加载一个资源并返回树的根节点，失败时不返回部分构建的树。
type Parser interface {
	LoadResource(ctx context.Context, resource model.ArchiveResource) (*model.ArchiveEntry, error)
}

// ResourceLister 列出后端中可加载的资源。
type ResourceLister interface {
	ListResources(ctx context.Context) ([]model.ArchiveResource, error)
}

// Backend 同时具备列表和加载能力，ArchiveManager 只依赖此接口。
type Backend interface {
	Parser
	ResourceLister
}

// DocumentSource 是 XML 数据库后端的传输层。
type DocumentSource interface {
	ResourceLister
	FetchDocument(ctx context.Context, resource model.ArchiveResource) ([]byte, error)
}

// IndexDocument 是文档索引中的一条记录。
type IndexDocument struct {
	ID     string
	Fields map[string][]string
}

// First 返回字段的第一个非空值。
func (d IndexDocument) First(field string) string {
	for _, v := range d.Fields[field] {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Bool 将字段的第一个值解析为布尔值，无法解析时为 false。
func (d IndexDocument) Bool(field string) bool {
	b, err := strconv.ParseBool(d.First(field))
	return err == nil && b
}

// Int 将字段的第一个值解析为整数。
func (d IndexDocument) Int(field string) (int, bool) {
	n, err := strconv.Atoi(d.First(field))
	return n, err == nil
}

// IndexBackend 是文档索引的查询接口。
type IndexBackend interface {
	// FindDocuments 返回 field 精确等于 value 的文档。
	FindDocuments(ctx context.Context, field, value string) ([]IndexDocument, error)
	// FindDocumentsWithField 返回含有 field 字段的所有文档。
	FindDocumentsWithField(ctx context.Context, field string) ([]IndexDocument, error)
}

// 索引字段名
const (
	FieldIDDoc            = "IDDOC"
	FieldNodeID           = "EAD_NODE_ID"
	FieldParentIDDoc      = "IDDOC_PARENT"
	FieldNodeType         = "NODE_TYPE"
	FieldDescriptionLevel = "DESCRIPTION_LEVEL"
	FieldOrder            = "ORDER"
	FieldDocType          = "DOCTYPE"
	FieldDateUpdated      = "DATEUPDATED"
	FieldArchiveEntryID   = "MD_ARCHIVE_ENTRY_ID"
	FieldTopStructPI      = "PI_TOPSTRUCT"
	FieldImageAvailable   = "BOOL_IMAGEAVAILABLE"
	DocTypeArchive        = "ARCHIVE"
)

// Association 是档案节点关联的数字化记录。
type Association struct {
	RecordPI string
	HasImage bool
}

// associationMap 是节点 id 到关联记录的查找表，每个解析器实例只成功构建一次。
type associationMap struct {
	backend IndexBackend

	mu      sync.Mutex
	built   bool
	entries map[string]Association
}

func newAssociationMap(backend IndexBackend) *associationMap {
	return &associationMap{backend: backend}
}

// lookup 返回节点的关联记录。后端为空时始终返回未找到。
func (a *associationMap) lookup(ctx context.Context, nodeID string) (Association, bool, error) {
	if a == nil || a.backend == nil || nodeID == "" {
		return Association{}, false, nil
	}
	if err := a.ensure(ctx); err != nil {
		return Association{}, false, err
	}
	assoc, ok := a.entries[nodeID]
	return assoc, ok, nil
}

func (a *associationMap) ensure(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.built {
		return nil
	}

	docs, err := a.backend.FindDocumentsWithField(ctx, FieldArchiveEntryID)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackendUnreachable, "load record associations", err)
	}
	entries := make(map[string]Association, len(docs))
	for _, doc := range docs {
		pi := doc.First(FieldTopStructPI)
		if pi == "" {
			continue
		}
		for _, nodeID := range doc.Fields[FieldArchiveEntryID] {
			nodeID = strings.TrimSpace(nodeID)
			if nodeID == "" {
				continue
			}
			if _, exists := entries[nodeID]; exists {
				continue
			}
			entries[nodeID] = Association{RecordPI: pi, HasImage: doc.Bool(FieldImageAvailable)}
		}
	}
	a.entries = entries
	a.built = true
	log.Infof("[Parser] 记录关联表构建完成, 共 %d 条", len(entries))
	return nil
}

// applyAssociation 写入关联记录，并根据已构建的子节点向上汇总 containsImage。
func applyAssociation(ctx context.Context, assoc *associationMap, entry *model.ArchiveEntry) error {
	a, ok, err := assoc.lookup(ctx, entry.ID)
	if err != nil {
		return err
	}
	if ok {
		entry.AssociatedRecordPI = a.RecordPI
		entry.ContainsImage = a.HasImage
	}
	for _, c := range entry.Children() {
		if c.ContainsImage {
			entry.ContainsImage = true
			break
		}
	}
	return nil
}

// checkTemplates 校验字段模板，非空且每条合法。
func checkTemplates(op string, templates []model.ArchiveMetadataField) error {
	if len(templates) == 0 {
		return archiveerr.Newf(archiveerr.KindConfigurationMissing, op, "未配置字段模板")
	}
	for i, t := range templates {
		if err := t.Validate(); err != nil {
			return archiveerr.Newf(archiveerr.KindConfigurationMissing, op, "字段模板 %d: %v", i, err)
		}
	}
	return nil
}
