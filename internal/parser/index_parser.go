package parser

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"archive-view-go/internal/archiveerr"
	"archive-view-go/internal/model"
	"archive-view-go/pkg/log"
)

// IndexParser 从文档索引中按父子关联递归构建树。
// 字段模板的表达式在这里是索引字段名。
type IndexParser struct {
	backend      IndexBackend
	databaseName string
	templates    []model.ArchiveMetadataField
	assoc        *associationMap
}

// NewIndexParser 创建索引解析器，databaseName 是列出资源时使用的数据库名。
func NewIndexParser(backend IndexBackend, databaseName string, templates []model.ArchiveMetadataField) (*IndexParser, error) {
	const op = "new index parser"
	if backend == nil {
		return nil, archiveerr.Newf(archiveerr.KindConfigurationMissing, op, "未配置索引后端")
	}
	if err := checkTemplates(op, templates); err != nil {
		return nil, err
	}
	if strings.TrimSpace(databaseName) == "" {
		databaseName = "index"
	}
	return &IndexParser{
		backend:      backend,
		databaseName: databaseName,
		templates:    templates,
		assoc:        newAssociationMap(backend),
	}, nil
}

// ListResources 返回所有顶层档案文档。
func (p *IndexParser) ListResources(ctx context.Context) ([]model.ArchiveResource, error) {
	docs, err := p.backend.FindDocuments(ctx, FieldDocType, DocTypeArchive)
	if err != nil {
		return nil, backendError("list index resources", err)
	}

	var resources []model.ArchiveResource
	for _, doc := range docs {
		if doc.First(FieldParentIDDoc) != "" {
			continue
		}
		name := doc.First(FieldNodeID)
		if name == "" {
			continue
		}
		res := model.ArchiveResource{DatabaseName: p.databaseName, ResourceName: name}
		if ms, ok := doc.Int(FieldDateUpdated); ok {
			res.LastModified = time.UnixMilli(int64(ms))
		}
		resources = append(resources, res)
	}
	sort.SliceStable(resources, func(i, j int) bool {
		return resources[i].ResourceName < resources[j].ResourceName
	})
	log.Infof("[IndexParser] 共列出 %d 个档案资源", len(resources))
	return resources, nil
}

// LoadResource 按外部标识查找顶层文档，再逐层查找子文档。
func (p *IndexParser) LoadResource(ctx context.Context, resource model.ArchiveResource) (*model.ArchiveEntry, error) {
	const op = "load index resource"
	log.Infof("[IndexParser] 开始加载资源: %s", resource.Key())

	docs, err := p.backend.FindDocuments(ctx, FieldNodeID, resource.ResourceName)
	if err != nil {
		return nil, backendError(op, err)
	}
	var top *IndexDocument
	for i := range docs {
		if docs[i].First(FieldDocType) == DocTypeArchive && docs[i].First(FieldParentIDDoc) == "" {
			top = &docs[i]
			break
		}
	}
	if top == nil {
		return nil, archiveerr.Newf(archiveerr.KindResourceNotFound, op, "未找到顶层档案文档 %q", resource.ResourceName)
	}

	visited := make(map[string]bool)
	root, err := p.buildNode(ctx, *top, 0, 0, visited)
	if err != nil {
		log.Errorf("[IndexParser] 资源加载失败: %s, Error: %v", resource.Key(), err)
		return nil, err
	}
	log.Infof("[IndexParser] 资源加载完成: %s, 共 %d 个节点", resource.Key(), len(visited))
	return root, nil
}

func (p *IndexParser) buildNode(ctx context.Context, doc IndexDocument, order, level int, visited map[string]bool) (*model.ArchiveEntry, error) {
	const op = "build index node"
	internalID := doc.First(FieldIDDoc)
	if internalID == "" {
		internalID = doc.ID
	}
	if visited[internalID] {
		return nil, archiveerr.Newf(archiveerr.KindInvalidFormat, op, "文档 %q 的父子关联存在环", internalID)
	}
	visited[internalID] = true

	entry := model.NewArchiveEntry(order, level)
	entry.ID = doc.First(FieldNodeID)
	if entry.ID == "" {
		entry.ID = internalID
	}
	entry.NodeType = doc.First(FieldNodeType)
	if entry.NodeType == "" {
		entry.NodeType = model.DefaultNodeType
	}
	entry.DescriptionLevel = doc.First(FieldDescriptionLevel)

	for _, tpl := range p.templates {
		var first string
		for _, v := range doc.Fields[tpl.Expression] {
			if v = strings.TrimSpace(v); v == "" {
				continue
			}
			if first == "" {
				first = v
			}
			entry.AddMetadata(model.MetadataField{Label: tpl.Label, Area: tpl.Area, Value: v})
		}
		if tpl.IsUnitTitle() && entry.Label == "" {
			entry.Label = first
		}
	}

	children, err := p.backend.FindDocuments(ctx, FieldParentIDDoc, internalID)
	if err != nil {
		return nil, backendError(op, err)
	}
	sortByOrder(children)
	for i, childDoc := range children {
		child, err := p.buildNode(ctx, childDoc, i, level+1, visited)
		if err != nil {
			return nil, err
		}
		entry.AddChild(child)
	}

	if err := applyAssociation(ctx, p.assoc, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// sortByOrder 按 ORDER 字段稳定排序，没有 ORDER 的文档排在最后并保持后端顺序。
func sortByOrder(docs []IndexDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		oi, okI := docs[i].Int(FieldOrder)
		oj, okJ := docs[j].Int(FieldOrder)
		switch {
		case okI && okJ:
			return oi < oj
		default:
			return okI && !okJ
		}
	})
}

func backendError(op string, err error) error {
	var ae *archiveerr.Error
	if errors.As(err, &ae) {
		return err
	}
	return archiveerr.New(archiveerr.KindBackendUnreachable, op, err)
}
