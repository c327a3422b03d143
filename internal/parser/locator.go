package parser

import (
	"fmt"
	"strings"

	"archive-view-go/internal/model"
)

// Locator 是字段模板中抽取表达式的编译形式：一串相对子元素步骤，
// 可选地以属性名或 text() 结尾。
type Locator struct {
	Steps     []string
	Attribute string
	Text      bool
}

// ParseLocator 解析形如 ead:did/ead:unittitle、did/unitid/@type、./@level
// 或 did/unitdate/text() 的表达式，命名空间前缀被忽略。
func ParseLocator(expr string) (Locator, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Locator{}, fmt.Errorf("表达式为空")
	}

	var loc Locator
	parts := strings.Split(expr, "/")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		last := i == len(parts)-1
		switch {
		case p == "" || p == ".":
			continue
		case p == "text()":
			if !last {
				return Locator{}, fmt.Errorf("表达式 %q: text() 只能出现在末尾", expr)
			}
			loc.Text = true
		case strings.HasPrefix(p, "@"):
			if !last {
				return Locator{}, fmt.Errorf("表达式 %q: 属性只能出现在末尾", expr)
			}
			name := localName(strings.TrimPrefix(p, "@"))
			if name == "" {
				return Locator{}, fmt.Errorf("表达式 %q: 属性名为空", expr)
			}
			loc.Attribute = name
		case strings.ContainsAny(p, "[]()|="):
			return Locator{}, fmt.Errorf("表达式 %q: 不支持的步骤 %q", expr, p)
		default:
			loc.Steps = append(loc.Steps, localName(p))
		}
	}
	return loc, nil
}

// String 返回规范化后的表达式。
func (l Locator) String() string {
	parts := append([]string(nil), l.Steps...)
	switch {
	case l.Attribute != "":
		parts = append(parts, "@"+l.Attribute)
	case l.Text:
		parts = append(parts, "text()")
	}
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, "/")
}

// Select 返回从 n 出发按步骤匹配到的所有元素，步骤为空时返回 n 本身。
func (l Locator) Select(n Node) []Node {
	current := []Node{n}
	for _, step := range l.Steps {
		var next []Node
		for _, c := range current {
			next = append(next, childrenNamed(c, step)...)
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}

// Evaluate 按结果类型对 n 求值，空白值会被丢弃。
//
// 结果类型为 attribute 而表达式没有显式属性时，最后一个步骤被当作属性名。
func (l Locator) Evaluate(n Node, kind model.ResultKind) []string {
	loc := l
	if kind == model.ResultAttribute && loc.Attribute == "" && len(loc.Steps) > 0 {
		loc = Locator{
			Steps:     loc.Steps[:len(loc.Steps)-1],
			Attribute: loc.Steps[len(loc.Steps)-1],
		}
	}

	var values []string
	for _, m := range loc.Select(n) {
		var v string
		switch {
		case loc.Attribute != "":
			v, _ = m.Attr(loc.Attribute)
			v = strings.TrimSpace(v)
		case kind == model.ResultElement && !loc.Text:
			v = m.Content()
		default:
			v = normalizeSpace(m.Text())
		}
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}
