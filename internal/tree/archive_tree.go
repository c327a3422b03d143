// Package tree 负责把解析得到的档案根节点构建成可寻址、可折叠的树视图。
package tree

import (
	"strings"
	"sync"

	"archive-view-go/internal/model"
)

const (
	// DefaultGroup 保存完整的先序遍历序列（忽略可见性）。
	DefaultGroup = "_DEFAULT"
	// SearchGroup 保存当前搜索结果的子树遍历序列。
	SearchGroup = "_SEARCH"
)

// DefaultCollapseLevel 是未配置时的默认折叠层级。
const DefaultCollapseLevel = 1

// ArchiveTree 持有档案根节点及其派生视图。
//
// 视图在第一次读取时惰性构建，构建过程在互斥锁保护下只执行一次。
// 分组表和搜索词只在互斥锁下读写；节点上的展开、可见和搜索标记
// 由调用方串行修改。
type ArchiveTree struct {
	mu            sync.Mutex
	treeBuilt     bool
	builds        int
	collapseLevel int

	root     *model.ArchiveEntry
	entryMap map[string][]*model.ArchiveEntry
	selected *model.ArchiveEntry

	searchTerm string
	maxDepth   int
	totalSize  int
}

// NewArchiveTree 创建一个空树，collapseLevel 小于 0 时按 0 处理。
func NewArchiveTree(collapseLevel int) *ArchiveTree {
	if collapseLevel < 0 {
		collapseLevel = 0
	}
	return &ArchiveTree{
		collapseLevel: collapseLevel,
		entryMap:      make(map[string][]*model.ArchiveEntry),
	}
}

// Generate 用给定根节点填充树。
// 如果根节点只有一个子节点，则提升该子节点为新的根，并将其子树层级整体减 1。
func (t *ArchiveTree) Generate(root *model.ArchiveEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if children := root.Children(); len(children) == 1 {
		child := children[0]
		child.Detach()
		child.ShiftHierarchy(-1)
		root = child
	}
	root.DisplayChildren = true

	t.root = root
	t.entryMap = map[string][]*model.ArchiveEntry{
		DefaultGroup: root.Flatten(true),
	}
	t.selected = nil
	t.searchTerm = ""
	t.treeBuilt = false
}

// Root 返回树的根节点，未 Generate 时为 nil。
func (t *ArchiveTree) Root() *model.ArchiveEntry {
	return t.root
}

// CollapseLevel 返回默认折叠层级。
func (t *ArchiveTree) CollapseLevel() int {
	return t.collapseLevel
}

// Group 返回命名分组中的节点序列。
func (t *ArchiveTree) Group(name string) []*model.ArchiveEntry {
	t.ensureBuilt()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entryMap[name]
}

// TreeView 返回默认分组，必要时先构建视图。
func (t *ArchiveTree) TreeView() []*model.ArchiveEntry {
	return t.Group(DefaultGroup)
}

// Rebuild 在结构变化后重新扁平化并重建整个视图。
func (t *ArchiveTree) Rebuild() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.root == nil {
		return
	}
	t.entryMap[DefaultGroup] = t.root.Flatten(true)
	t.buildTreeView(t.collapseLevel)
}

func (t *ArchiveTree) ensureBuilt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.treeBuilt || t.root == nil {
		return
	}
	t.buildTreeView(t.collapseLevel)
}

// buildTreeView 遍历扁平序列，记录序号、父序号和最大深度。
// 调用方必须持有 t.mu。
func (t *ArchiveTree) buildTreeView(collapseLevel int) {
	entries := t.entryMap[DefaultGroup]
	t.maxDepth = 0

	// lastAtLevel[n] 是最近一个位于第 n 层的节点序号
	var lastAtLevel []int
	var prev *model.ArchiveEntry
	for i, entry := range entries {
		entry.Index = i
		level := entry.HierarchyLevel
		if level > t.maxDepth {
			t.maxDepth = level
		}

		if prev != nil && level > prev.HierarchyLevel {
			// 层级加深：上一个节点打开了当前这一层
			if level > collapseLevel {
				entry.Visible = false
				prev.Expanded = false
			} else {
				entry.Visible = true
				prev.Expanded = true
			}
		}

		if level == 0 || level > len(lastAtLevel) {
			entry.ParentIndex = -1
			if prev != nil && level > 0 {
				entry.ParentIndex = prev.Index
			}
		} else {
			entry.ParentIndex = lastAtLevel[level-1]
		}

		for len(lastAtLevel) <= level {
			lastAtLevel = append(lastAtLevel, -1)
		}
		lastAtLevel[level] = i
		lastAtLevel = lastAtLevel[:level+1]
		prev = entry
	}
	t.totalSize = len(entries)

	resetCollapseLevel(t.root, collapseLevel)
	t.treeBuilt = true
	t.builds++
}

// resetCollapseLevel 自顶向下重置可见与展开状态，保证结果与文档顺序无关。
func resetCollapseLevel(entry *model.ArchiveEntry, collapseLevel int) {
	if entry == nil {
		return
	}
	entry.Visible = entry.HierarchyLevel <= collapseLevel
	entry.Expanded = entry.HasChildren() && entry.HierarchyLevel < collapseLevel
	for _, c := range entry.Children() {
		resetCollapseLevel(c, collapseLevel)
	}
}

// MaxDepth 返回最深的层级。
func (t *ArchiveTree) MaxDepth() int {
	t.ensureBuilt()
	return t.maxDepth
}

// TotalSize 返回节点总数。
func (t *ArchiveTree) TotalSize() int {
	t.ensureBuilt()
	return t.totalSize
}

// SelectedEntry 返回当前选中的节点。
func (t *ArchiveTree) SelectedEntry() *model.ArchiveEntry {
	return t.selected
}

// SetSelectedEntry 设置当前选中的节点。
func (t *ArchiveTree) SetSelectedEntry(entry *model.ArchiveEntry) {
	t.selected = entry
}

// EntryByID 从根节点深度优先查找节点。
func (t *ArchiveTree) EntryByID(id string) (*model.ArchiveEntry, bool) {
	if t.root == nil || id == "" {
		return nil, false
	}
	return t.root.FindByID(id)
}

// Neighbors 返回节点在完整先序序列中的前一个和后一个节点。
func (t *ArchiveTree) Neighbors(id string) (prev, next *model.ArchiveEntry, ok bool) {
	entries := t.TreeView()
	entry, found := t.EntryByID(id)
	if !found {
		return nil, nil, false
	}
	idx := entry.Index
	if idx > 0 {
		prev = entries[idx-1]
	}
	if idx+1 < len(entries) {
		next = entries[idx+1]
	}
	return prev, next, true
}

// Search 标记所有匹配节点及其祖先，并用标记后的子树替换当前搜索结果。
// 空白搜索词等同于 ResetSearch。
func (t *ArchiveTree) Search(term string) []*model.ArchiveEntry {
	term = strings.TrimSpace(term)
	if term == "" {
		t.ResetSearch()
		return nil
	}
	t.ensureBuilt()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.root == nil {
		return nil
	}

	t.root.ResetSearchState()
	searchInNode(t.root, term)
	results := t.root.CollectSearchMatches()

	t.entryMap[SearchGroup] = results
	t.searchTerm = term
	return results
}

func searchInNode(entry *model.ArchiveEntry, term string) {
	if entry.Matches(term) {
		entry.MarkFound(true)
	}
	for _, c := range entry.Children() {
		searchInNode(c, term)
	}
}

// ResetSearch 清除所有搜索标记和当前搜索结果。
func (t *ArchiveTree) ResetSearch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.root != nil {
		t.root.ResetSearchState()
	}
	delete(t.entryMap, SearchGroup)
	t.searchTerm = ""
}

// SearchTerm 返回当前生效的搜索词。
func (t *ArchiveTree) SearchTerm() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.searchTerm
}

// SearchResults 返回当前搜索结果。
func (t *ArchiveTree) SearchResults() []*model.ArchiveEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entryMap[SearchGroup]
}

// VisibleEntries 返回需要展示的节点：有搜索时为搜索结果，否则为可见节点。
func (t *ArchiveTree) VisibleEntries() []*model.ArchiveEntry {
	if t.SearchTerm() != "" {
		return t.SearchResults()
	}
	var visible []*model.ArchiveEntry
	for _, e := range t.TreeView() {
		if e.Visible {
			visible = append(visible, e)
		}
	}
	return visible
}

// Page 返回可见节点的第 page 页（从 1 开始）以及总页数。
func (t *ArchiveTree) Page(page, pageSize int) ([]*model.ArchiveEntry, int) {
	visible := t.VisibleEntries()
	if pageSize <= 0 {
		return visible, 1
	}
	totalPages := (len(visible) + pageSize - 1) / pageSize
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(visible) {
		return nil, totalPages
	}
	end := start + pageSize
	if end > len(visible) {
		end = len(visible)
	}
	return visible[start:end], totalPages
}

// Expand 展开给定 id 的节点。
func (t *ArchiveTree) Expand(id string) bool {
	t.ensureBuilt()
	entry, ok := t.EntryByID(id)
	if !ok {
		return false
	}
	entry.Expand()
	return true
}

// Collapse 折叠给定 id 的节点。
func (t *ArchiveTree) Collapse(id string) bool {
	t.ensureBuilt()
	entry, ok := t.EntryByID(id)
	if !ok {
		return false
	}
	entry.Collapse()
	return true
}

// ExpandAll 让所有节点可见并展开所有非叶子节点。
func (t *ArchiveTree) ExpandAll() {
	for _, e := range t.TreeView() {
		e.Visible = true
		e.Expanded = e.HasChildren()
	}
}

// CollapseAll 折叠所有节点。根节点保持展开，除非 collapseDescendantsToo 为 true。
func (t *ArchiveTree) CollapseAll(collapseDescendantsToo bool) {
	for _, e := range t.TreeView() {
		switch e.HierarchyLevel {
		case 0:
			e.Visible = true
			e.Expanded = e.HasChildren() && !collapseDescendantsToo
		case 1:
			e.Visible = !collapseDescendantsToo
			e.Expanded = false
		default:
			e.Visible = false
			e.Expanded = false
		}
	}
}
