package model

import (
	"fmt"
	"strings"
)

// AreaType 对应 ISAD(G) 的七个著录区（1-7）。
type AreaType int

const (
	AreaIdentityStatement AreaType = iota + 1
	AreaContext
	AreaContentAndStructure
	AreaAccessAndUse
	AreaAlliedMaterials
	AreaNotes
	AreaDescriptionControl
)

// AreaCount 是著录区的数量。
const AreaCount = 7

var areaNames = [AreaCount]string{
	"identityStatement",
	"context",
	"contentAndStructure",
	"accessAndUse",
	"alliedMaterials",
	"notes",
	"descriptionControl",
}

// Valid 判断著录区编号是否在 1..7 之间。
func (a AreaType) Valid() bool {
	return a >= AreaIdentityStatement && a <= AreaDescriptionControl
}

func (a AreaType) String() string {
	if !a.Valid() {
		return fmt.Sprintf("area(%d)", int(a))
	}
	return areaNames[a-1]
}

// ResultKind 描述抽取表达式的结果类型。
type ResultKind string

const (
	ResultText      ResultKind = "text"
	ResultAttribute ResultKind = "attribute"
	ResultElement   ResultKind = "element"
)

// ParseResultKind 解析配置中的结果类型，空字符串视为 text。
func ParseResultKind(s string) (ResultKind, error) {
	switch ResultKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", ResultText:
		return ResultText, nil
	case ResultAttribute:
		return ResultAttribute, nil
	case ResultElement:
		return ResultElement, nil
	default:
		return "", fmt.Errorf("unknown result kind %q", s)
	}
}

// ArchiveMetadataField 是字段抽取模板，来自配置，解析时不会被修改。
type ArchiveMetadataField struct {
	Label      string
	Area       AreaType
	Expression string // 定位表达式（XML）或索引字段名
	Result     ResultKind
}

// unitTitleSuffix 是约定俗成的题名定位符结尾，例如 "ead:did/ead:unittitle" 或 "MD_UNITTITLE"。
const unitTitleSuffix = "unittitle"

// IsUnitTitle 判断模板是否指向“题名”字段。
func (f ArchiveMetadataField) IsUnitTitle() bool {
	expr := strings.ToLower(strings.TrimSpace(f.Expression))
	expr = strings.TrimSuffix(expr, "/text()")
	return strings.HasSuffix(expr, unitTitleSuffix)
}

// Validate 检查模板本身是否完整。
func (f ArchiveMetadataField) Validate() error {
	if strings.TrimSpace(f.Label) == "" {
		return fmt.Errorf("metadata field without label")
	}
	if !f.Area.Valid() {
		return fmt.Errorf("metadata field %q: area %d out of range 1..%d", f.Label, int(f.Area), AreaCount)
	}
	if strings.TrimSpace(f.Expression) == "" {
		return fmt.Errorf("metadata field %q: empty expression", f.Label)
	}
	return nil
}

// MetadataField 是某个节点上抽取出来的单个字段值。
type MetadataField struct {
	Label string   `json:"label"`
	Area  AreaType `json:"area"`
	Value string   `json:"value"`
}
