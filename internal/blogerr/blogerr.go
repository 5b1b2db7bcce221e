// Package blogerr 定义内容层共享的错误类别。
//
// FileStore、ContentIndex 与 BlogService 均以 %w 包装这些哨兵错误，
// 路由层通过 errors.Is 将其映射为 HTTP 状态码。
package blogerr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 表示文件或索引行不存在。
	ErrNotFound = errors.New("not found")
	// ErrConflict 表示 slug 在创建或重命名时已存在。
	ErrConflict = errors.New("already exists")
	// ErrIOFailure 表示磁盘读写失败，不做重试。
	ErrIOFailure = errors.New("io failure")
	// ErrValidation 表示调用方提供的数据不合法。
	ErrValidation = errors.New("validation failure")
)

// NotFound wraps ErrNotFound with context.
func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

// Conflict wraps ErrConflict with context.
func Conflict(format string, args ...any) error {
	return wrap(ErrConflict, format, args...)
}

// Invalid wraps ErrValidation with context.
func Invalid(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

// IO wraps an underlying I/O error so both the kind and the cause stay inspectable.
func IO(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), ErrIOFailure, err)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}
