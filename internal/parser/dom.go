package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Node 是解析器所需的最小文档节点抽象，名称均为去掉命名空间后的本地名。
type Node interface {
	Name() string
	Attr(name string) (string, bool)
	Children() []Node
	// Text 返回节点自身的直接字符数据。
	Text() string
	// Content 返回节点及其所有后代的文本，空白已规整。
	Content() string
}

type element struct {
	name     string
	attrs    map[string]string
	children []Node
	// parts 按文档顺序保存字符数据和子元素，Content 在读取时才拼接
	parts []part
}

// part 是字符数据或子元素之一。
type part struct {
	text  string
	child *element
}

func (e *element) Name() string { return e.name }

func (e *element) Attr(name string) (string, bool) {
	v, ok := e.attrs[localName(name)]
	return v, ok
}

func (e *element) Children() []Node { return e.children }

func (e *element) Text() string {
	var b strings.Builder
	for _, p := range e.parts {
		if p.child == nil {
			b.WriteString(p.text)
		}
	}
	return strings.TrimSpace(b.String())
}

func (e *element) Content() string {
	var b strings.Builder
	e.writeContent(&b)
	return normalizeSpace(b.String())
}

// writeContent 先序写出所有字符数据，子元素两侧补空格以免相邻单词粘连。
func (e *element) writeContent(b *strings.Builder) {
	for _, p := range e.parts {
		if p.child == nil {
			b.WriteString(p.text)
			continue
		}
		b.WriteByte(' ')
		p.child.writeContent(b)
		b.WriteByte(' ')
	}
}

// ParseDocument 将 XML 文档解析为节点树，返回文档根元素。
func ParseDocument(data []byte) (Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var root *element
	var stack []*element
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("解析 XML 失败: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local, attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				el.attrs[a.Name.Local] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("文档包含多个根元素")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
				parent.parts = append(parent.parts, part{child: el})
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.New("结束标签不匹配")
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			cur := stack[len(stack)-1]
			cur.parts = append(cur.parts, part{text: string(t)})
		}
	}

	if root == nil {
		return nil, errors.New("文档为空")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("元素 <%s> 未闭合", stack[len(stack)-1].name)
	}
	return root, nil
}

func localName(name string) string {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// isComponent 判断元素名是否为 EAD 组件：c 或编号形式 c01..c12。
func isComponent(name string) bool {
	if name == "c" {
		return true
	}
	if len(name) != 3 || name[0] != 'c' {
		return false
	}
	n := int(name[1]-'0')*10 + int(name[2]-'0')
	return name[1] >= '0' && name[1] <= '9' && name[2] >= '0' && name[2] <= '9' && n >= 1 && n <= 12
}

// matchName 判断元素名是否匹配定位步骤，c 同时匹配编号组件。
func matchName(step, name string) bool {
	if step == "*" || step == name {
		return true
	}
	return step == "c" && isComponent(name)
}

// childrenNamed 返回名称匹配的直接子元素。
func childrenNamed(n Node, name string) []Node {
	var out []Node
	for _, c := range n.Children() {
		if matchName(name, c.Name()) {
			out = append(out, c)
		}
	}
	return out
}

// firstChild 返回第一个名称匹配的直接子元素。
func firstChild(n Node, name string) (Node, bool) {
	for _, c := range n.Children() {
		if matchName(name, c.Name()) {
			return c, true
		}
	}
	return nil, false
}
