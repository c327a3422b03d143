// Package archiveerr 定义了档案加载过程中对外暴露的错误类型。
//
// 调用方只应依赖错误的 Kind，而不是具体的错误信息。
package archiveerr

import (
	"errors"
	"fmt"
)

// Kind 表示错误的类别。
type Kind string

const (
	KindUnknown              Kind = "unknown"
	KindBackendUnreachable   Kind = "backend-unreachable"
	KindInvalidFormat        Kind = "invalid-format"
	KindConfigurationMissing Kind = "configuration-missing"
	KindResourceNotFound     Kind = "resource-not-found"
)

// 用于 errors.Is 比较的哨兵错误。
var (
	ErrBackendUnreachable   = &Error{Kind: KindBackendUnreachable}
	ErrInvalidFormat        = &Error{Kind: KindInvalidFormat}
	ErrConfigurationMissing = &Error{Kind: KindConfigurationMissing}
	ErrResourceNotFound     = &Error{Kind: KindResourceNotFound}
)

// Error 是带有类别和操作名的错误。
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New 创建一个新的分类错误。
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf 使用格式化信息创建一个新的分类错误。
func Newf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 只比较 Kind，使 errors.Is(err, ErrInvalidFormat) 对任意包装层级都成立。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf 返回错误链中第一个分类错误的 Kind。
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
