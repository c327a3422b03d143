package model

import (
	"strings"
	"weak"
)

// DefaultNodeType 是既没有 type 也没有 otherlevel 属性时使用的节点类型。
const DefaultNodeType = "folder"

// ArchiveEntry 是档案层级树中的一个节点。
//
// 父节点拥有子节点列表；子节点只持有指向父节点的弱引用，用于向上遍历。
type ArchiveEntry struct {
	ID               string `json:"id"`
	Label            string `json:"label"`
	NodeType         string `json:"nodeType"`
	DescriptionLevel string `json:"descriptionLevel"`

	OrderNumber    int `json:"orderNumber"`
	HierarchyLevel int `json:"hierarchyLevel"`

	// Index 和 ParentIndex 是树视图构建时写入的扁平序号，根节点的 ParentIndex 为 -1。
	Index       int `json:"index"`
	ParentIndex int `json:"parentIndex"`

	Visible         bool `json:"visible"`
	Expanded        bool `json:"expanded"`
	DisplayChildren bool `json:"displayChildren"`
	DisplaySearch   bool `json:"displaySearch"`
	SearchHit       bool `json:"searchHit"`

	Valid              bool   `json:"valid"`
	ContainsImage      bool   `json:"containsImage"`
	AssociatedRecordPI string `json:"associatedRecordPi,omitempty"`

	parent   weak.Pointer[ArchiveEntry]
	children []*ArchiveEntry
	areas    [AreaCount][]MetadataField
}

// NewArchiveEntry 创建一个位于给定顺序号和层级的节点。
func NewArchiveEntry(orderNumber, hierarchyLevel int) *ArchiveEntry {
	return &ArchiveEntry{
		OrderNumber:    orderNumber,
		HierarchyLevel: hierarchyLevel,
		ParentIndex:    -1,
		Valid:          true,
	}
}

// Parent 返回父节点，根节点返回 nil。
// 父引用是弱引用：树的根已不可达时，即使仍持有子节点，Parent 也可能返回 nil，
// 需要向上遍历的调用方应在遍历结束前持有树或根节点。
func (e *ArchiveEntry) Parent() *ArchiveEntry {
	return e.parent.Value()
}

// IsRoot 判断节点是否没有父节点。
func (e *ArchiveEntry) IsRoot() bool {
	return e.Parent() == nil
}

// Children 返回子节点列表，调用方不应修改返回的切片。
func (e *ArchiveEntry) Children() []*ArchiveEntry {
	return e.children
}

// HasChildren 判断节点是否有子节点。
func (e *ArchiveEntry) HasChildren() bool {
	return len(e.children) > 0
}

// AddChild 追加子节点并设置其父引用，不重新编号。
func (e *ArchiveEntry) AddChild(child *ArchiveEntry) {
	child.parent = weak.Make(e)
	e.children = append(e.children, child)
}

// RemoveChild 按身份移除子节点，并为剩余兄弟节点重新编号。
func (e *ArchiveEntry) RemoveChild(child *ArchiveEntry) bool {
	for i, c := range e.children {
		if c != child {
			continue
		}
		e.children = append(e.children[:i:i], e.children[i+1:]...)
		child.parent = weak.Pointer[ArchiveEntry]{}
		e.RenumberChildren()
		return true
	}
	return false
}

// RenumberChildren 使直接子节点的 OrderNumber 按列表顺序从 0 连续编号。
func (e *ArchiveEntry) RenumberChildren() {
	for i, c := range e.children {
		c.OrderNumber = i
	}
}

// Detach 断开与父节点的连接，使该节点成为新的根节点。
func (e *ArchiveEntry) Detach() {
	if p := e.Parent(); p != nil {
		p.RemoveChild(e)
		return
	}
	e.parent = weak.Pointer[ArchiveEntry]{}
}

// Flatten 以先序遍历返回以自身为根的节点序列。
// includeHidden 为 false 时，只有 DisplayChildren 为 true 的节点才会展开其子树。
func (e *ArchiveEntry) Flatten(includeHidden bool) []*ArchiveEntry {
	list := []*ArchiveEntry{e}
	if e.DisplayChildren || includeHidden {
		for _, c := range e.children {
			list = append(list, c.Flatten(includeHidden)...)
		}
	}
	return list
}

// RecomputeHierarchy 自顶向下重新计算层级：自身层级不变，子节点 = 父节点 + 1。
// 根节点上调用时会先将根层级置为 0。
func (e *ArchiveEntry) RecomputeHierarchy() {
	if e.IsRoot() {
		e.HierarchyLevel = 0
	}
	for _, c := range e.children {
		c.HierarchyLevel = e.HierarchyLevel + 1
		c.RecomputeHierarchy()
	}
}

// ShiftHierarchy 将自身及所有后代的层级加上 offset。
func (e *ArchiveEntry) ShiftHierarchy(offset int) {
	e.HierarchyLevel += offset
	for _, c := range e.children {
		c.ShiftHierarchy(offset)
	}
}

// MarkFound 将节点标记为搜索命中，并沿父链向上打开 DisplaySearch。
// 遇到已标记的祖先即停止，因为其上方的链必然已经标记过。
func (e *ArchiveEntry) MarkFound(propagateToChildren bool) {
	e.SearchHit = true
	e.DisplaySearch = true
	for p := e.Parent(); p != nil && !p.DisplaySearch; p = p.Parent() {
		p.DisplaySearch = true
	}
	if propagateToChildren {
		for _, c := range e.children {
			c.setDisplaySearchRecursive()
		}
	}
}

func (e *ArchiveEntry) setDisplaySearchRecursive() {
	e.DisplaySearch = true
	for _, c := range e.children {
		c.setDisplaySearchRecursive()
	}
}

// ResetSearchState 清除整棵子树的搜索标记。
func (e *ArchiveEntry) ResetSearchState() {
	e.DisplaySearch = false
	e.SearchHit = false
	for _, c := range e.children {
		c.ResetSearchState()
	}
}

// CollectSearchMatches 先序返回所有 DisplaySearch 为 true 的节点。
// 无论父节点是否标记，都会继续检查子节点。
func (e *ArchiveEntry) CollectSearchMatches() []*ArchiveEntry {
	var list []*ArchiveEntry
	if e.DisplaySearch {
		list = append(list, e)
	}
	for _, c := range e.children {
		list = append(list, c.CollectSearchMatches()...)
	}
	return list
}

// Expand 展开节点：直接子节点可见，已展开的子节点继续向下级联。叶子节点不做任何处理。
func (e *ArchiveEntry) Expand() {
	if !e.HasChildren() {
		return
	}
	e.Expanded = true
	e.setChildrenVisibility(true)
}

// Collapse 折叠节点，隐藏所有通过已展开子节点可见的后代。叶子节点不做任何处理。
func (e *ArchiveEntry) Collapse() {
	if !e.HasChildren() {
		return
	}
	e.Expanded = false
	e.setChildrenVisibility(false)
}

func (e *ArchiveEntry) setChildrenVisibility(visible bool) {
	for _, c := range e.children {
		c.Visible = visible
		if c.Expanded {
			c.setChildrenVisibility(visible)
		}
	}
}

// Ancestors 返回从根开始的祖先链，includeSelf 为 true 时自身在最后。
func (e *ArchiveEntry) Ancestors(includeSelf bool) []*ArchiveEntry {
	var chain []*ArchiveEntry
	for p := e.Parent(); p != nil; p = p.Parent() {
		chain = append(chain, p)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	if includeSelf {
		chain = append(chain, e)
	}
	return chain
}

// FindByID 深度优先查找给定 id 的节点。
func (e *ArchiveEntry) FindByID(id string) (*ArchiveEntry, bool) {
	if e.ID == id {
		return e, true
	}
	for _, c := range e.children {
		if found, ok := c.FindByID(id); ok {
			return found, true
		}
	}
	return nil, false
}

// StructurallyEquals 按位置比较两个节点：层级、顺序号、标签相同且父链同样结构相等。
// 这不是身份比较，不同子树中处于相同坐标的两个节点会被认为相等。
func (e *ArchiveEntry) StructurallyEquals(other *ArchiveEntry) bool {
	if e == other {
		return true
	}
	if e == nil || other == nil {
		return false
	}
	if e.HierarchyLevel != other.HierarchyLevel || e.OrderNumber != other.OrderNumber || e.Label != other.Label {
		return false
	}
	p, op := e.Parent(), other.Parent()
	if p == nil || op == nil {
		return p == nil && op == nil
	}
	return p.StructurallyEquals(op)
}

// AddMetadata 将字段值追加到对应的著录区，越界的著录区会被忽略。
func (e *ArchiveEntry) AddMetadata(field MetadataField) bool {
	if !field.Area.Valid() {
		return false
	}
	e.areas[field.Area-1] = append(e.areas[field.Area-1], field)
	return true
}

// Area 返回某个著录区的字段列表。
func (e *ArchiveEntry) Area(area AreaType) []MetadataField {
	if !area.Valid() {
		return nil
	}
	return e.areas[area-1]
}

// MetadataByArea 返回以著录区名称为键的非空字段列表，用于展示。
func (e *ArchiveEntry) MetadataByArea() map[string][]MetadataField {
	out := make(map[string][]MetadataField)
	for i, fields := range e.areas {
		if len(fields) == 0 {
			continue
		}
		out[AreaType(i+1).String()] = fields
	}
	return out
}

// FirstValue 返回给定标签的第一个字段值。
func (e *ArchiveEntry) FirstValue(label string) (string, bool) {
	for _, fields := range e.areas {
		for _, f := range fields {
			if f.Label == label {
				return f.Value, true
			}
		}
	}
	return "", false
}

// Matches 判断节点是否匹配搜索词：标签不区分大小写的子串匹配，或 id 完全相等。
func (e *ArchiveEntry) Matches(term string) bool {
	if e.ID == term {
		return true
	}
	return strings.Contains(strings.ToLower(e.Label), strings.ToLower(term))
}
