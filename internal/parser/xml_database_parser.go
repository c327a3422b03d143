package parser

import (
	"context"
	"errors"
	"strings"

	"archive-view-go/internal/archiveerr"
	"archive-view-go/internal/model"
	"archive-view-go/pkg/log"

	"github.com/google/uuid"
)

// XMLDatabaseParser 通过 DocumentSource 获取 EAD 文档，并递归解析嵌套的组件元素。
type XMLDatabaseParser struct {
	source    DocumentSource
	templates []model.ArchiveMetadataField
	locators  []Locator
	assoc     *associationMap
	newID     func() string
}

// XMLOption 配置 XMLDatabaseParser。
type XMLOption func(*XMLDatabaseParser)

// WithAssociationBackend 使用文档索引解析节点关联的数字化记录。
func WithAssociationBackend(backend IndexBackend) XMLOption {
	return func(p *XMLDatabaseParser) {
		if backend != nil {
			p.assoc = newAssociationMap(backend)
		}
	}
}

// WithIDGenerator 替换缺少 id 属性时使用的 id 生成器。
func WithIDGenerator(gen func() string) XMLOption {
	return func(p *XMLDatabaseParser) {
		if gen != nil {
			p.newID = gen
		}
	}
}

// NewXMLDatabaseParser 创建解析器。source 可以为 nil，此时只能使用 ParseDocument。
func NewXMLDatabaseParser(source DocumentSource, templates []model.ArchiveMetadataField, opts ...XMLOption) (*XMLDatabaseParser, error) {
	const op = "new xml database parser"
	if err := checkTemplates(op, templates); err != nil {
		return nil, err
	}

	locators := make([]Locator, len(templates))
	for i, t := range templates {
		loc, err := ParseLocator(t.Expression)
		if err != nil {
			return nil, archiveerr.New(archiveerr.KindConfigurationMissing, op, err)
		}
		locators[i] = loc
	}

	p := &XMLDatabaseParser{
		source:    source,
		templates: templates,
		locators:  locators,
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ListResources 列出数据源中的所有资源。
func (p *XMLDatabaseParser) ListResources(ctx context.Context) ([]model.ArchiveResource, error) {
	if p.source == nil {
		return nil, archiveerr.Newf(archiveerr.KindConfigurationMissing, "list resources", "未配置 XML 数据源")
	}
	return p.source.ListResources(ctx)
}

// LoadResource 获取资源文档并解析为树。
func (p *XMLDatabaseParser) LoadResource(ctx context.Context, resource model.ArchiveResource) (*model.ArchiveEntry, error) {
	if p.source == nil {
		return nil, archiveerr.Newf(archiveerr.KindConfigurationMissing, "load resource", "未配置 XML 数据源")
	}

	log.Infof("[XMLDatabaseParser] 开始加载资源: %s", resource.Key())
	data, err := p.source.FetchDocument(ctx, resource)
	if err != nil {
		log.Errorf("[XMLDatabaseParser] 获取文档失败: %s, Error: %v", resource.Key(), err)
		return nil, err
	}

	root, err := p.ParseDocument(ctx, data)
	if err != nil {
		log.Errorf("[XMLDatabaseParser] 解析文档失败: %s, Error: %v", resource.Key(), err)
		return nil, err
	}
	log.Infof("[XMLDatabaseParser] 资源加载完成: %s, 根节点: %q", resource.Key(), root.Label)
	return root, nil
}

// ParseDocument 将 EAD 文档解析为树，archdesc 成为第 0 层的根节点。
func (p *XMLDatabaseParser) ParseDocument(ctx context.Context, data []byte) (*model.ArchiveEntry, error) {
	const op = "parse ead document"
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindInvalidFormat, op, err)
	}

	archdesc := doc
	if doc.Name() != "archdesc" {
		var ok bool
		if archdesc, ok = firstChild(doc, "archdesc"); !ok {
			return nil, archiveerr.Newf(archiveerr.KindInvalidFormat, op, "<%s> 中没有 archdesc 元素", doc.Name())
		}
	}

	root, err := p.parseElement(ctx, archdesc, 0, 0, true)
	if err != nil {
		var ae *archiveerr.Error
		if errors.As(err, &ae) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, archiveerr.New(archiveerr.KindInvalidFormat, op, err)
	}
	return root, nil
}

func (p *XMLDatabaseParser) parseElement(ctx context.Context, el Node, order, level int, topLevel bool) (*model.ArchiveEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry := model.NewArchiveEntry(order, level)
	if id, ok := el.Attr("id"); ok {
		entry.ID = strings.TrimSpace(id)
	}

	for i, tpl := range p.templates {
		values := p.locators[i].Evaluate(el, tpl.Result)
		for _, v := range values {
			entry.AddMetadata(model.MetadataField{Label: tpl.Label, Area: tpl.Area, Value: v})
		}
		if tpl.IsUnitTitle() && entry.Label == "" && len(values) > 0 {
			entry.Label = values[0]
		}
	}

	typeAttr := "otherlevel"
	if topLevel {
		typeAttr = "type"
	}
	entry.NodeType = model.DefaultNodeType
	if t, ok := el.Attr(typeAttr); ok && strings.TrimSpace(t) != "" {
		entry.NodeType = strings.TrimSpace(t)
	}
	if lvl, ok := el.Attr("level"); ok {
		entry.DescriptionLevel = strings.TrimSpace(lvl)
	}

	for i, child := range componentChildren(el, topLevel) {
		c, err := p.parseElement(ctx, child, i, level+1, false)
		if err != nil {
			return nil, err
		}
		entry.AddChild(c)
	}

	if entry.ID == "" {
		entry.ID = p.newID()
	}
	if err := applyAssociation(ctx, p.assoc, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// componentChildren 返回子组件：根节点的子组件位于 dsc 容器中，其他节点为直接嵌套的组件。
func componentChildren(el Node, topLevel bool) []Node {
	if !topLevel {
		return childrenNamed(el, "c")
	}
	var out []Node
	for _, dsc := range childrenNamed(el, "dsc") {
		out = append(out, childrenNamed(dsc, "c")...)
	}
	return out
}
