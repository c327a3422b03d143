// Package render 把档案树输出为文本。
package render

import (
	"fmt"
	"strings"

	"archive-view-go/internal/model"
	"archive-view-go/internal/tree"

	"github.com/disiqueira/gotree/v3"
)

const (
	// HitMarker 标记搜索命中的节点。
	HitMarker = "* "
	// CollapsedMarker 标记有隐藏子节点的节点。
	CollapsedMarker = " +"
)

// Options 控制输出哪些节点。
type Options struct {
	// All 为 true 时忽略展开状态输出全部节点。
	All bool
	// ShowIDs 在标签后输出节点 id。
	ShowIDs bool

	markCollapsed bool
}

// TreeText 以缩进树的形式输出档案树。有搜索词时只输出搜索结果，否则输出可见节点。
func TreeText(t *tree.ArchiveTree, opts Options) string {
	root := t.Root()
	if root == nil {
		return ""
	}
	searching := t.SearchTerm() != ""
	opts.markCollapsed = !searching && !opts.All
	include := func(e *model.ArchiveEntry) bool {
		switch {
		case searching:
			return e.DisplaySearch
		case opts.All:
			return true
		default:
			return e.Visible
		}
	}

	// 触发惰性构建，保证 Visible 等状态已就绪
	t.TreeView()
	out := gotree.New(label(root, opts))
	addChildren(out, root, include, opts)
	return out.Print()
}

func addChildren(node gotree.Tree, entry *model.ArchiveEntry, include func(*model.ArchiveEntry) bool, opts Options) {
	for _, c := range entry.Children() {
		if !include(c) {
			continue
		}
		addChildren(node.Add(label(c, opts)), c, include, opts)
	}
}

func label(e *model.ArchiveEntry, opts Options) string {
	var b strings.Builder
	if e.SearchHit {
		b.WriteString(HitMarker)
	}
	text := e.Label
	if text == "" {
		text = e.ID
	}
	b.WriteString(text)
	if e.NodeType != "" && e.NodeType != model.DefaultNodeType {
		fmt.Fprintf(&b, " [%s]", e.NodeType)
	}
	if opts.ShowIDs && e.ID != "" {
		fmt.Fprintf(&b, " (%s)", e.ID)
	}
	if opts.markCollapsed && e.HasChildren() && !e.Expanded {
		b.WriteString(CollapsedMarker)
	}
	return b.String()
}
