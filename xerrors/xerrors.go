// Package xerrors 提供 aegis 各组件共用的错误处理工具。
//
// 设计原则:
//   - 哨兵错误用 xerrors.New 在各包的 errors.go 中集中声明
//   - 跨层传递时用 Wrap/Wrapf 追加上下文，保留错误链供 Is/As 匹配
//   - 需要机器可读语义时用 WithCode 附加错误码，传输层据此映射状态码
//
// ## 基本使用
//
//	var ErrNotFound = xerrors.New("store: key not found")
//
//	if err := st.Set(ctx, key, val, 0); err != nil {
//	    return xerrors.Wrapf(err, "persist %s", key)
//	}
package xerrors

import (
	"errors"
	"fmt"
)

// 标准库函数再导出，调用方无需同时导入 errors
var (
	New    = errors.New
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Errorf 构造格式化错误，%w 动词与标准库语义一致。
func Errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// Wrap 为错误追加上下文信息。err 为 nil 时返回 nil。
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 为错误追加格式化的上下文信息。err 为 nil 时返回 nil。
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ========================================
// 错误码
// ========================================

// CodedError 携带机器可读错误码的错误，供传输层映射 HTTP/gRPC 状态码。
type CodedError struct {
	Code  string
	Cause error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[%s]", e.Code)
	}
	return fmt.Sprintf("[%s] %v", e.Code, e.Cause)
}

func (e *CodedError) Unwrap() error {
	return e.Cause
}

// WithCode 为错误附加错误码。err 为 nil 时返回 nil。
func WithCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Cause: err}
}

// GetCode 从错误链中提取最外层错误码，链上没有时返回空串。
func GetCode(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// ========================================
// 多错误聚合
// ========================================

// Collector 依次收集错误并保留第一个非 nil 值，适合多步清理场景。
type Collector struct {
	err error
}

// Collect 记录一个错误。已持有错误时后续调用被忽略。
func (c *Collector) Collect(err error) {
	if err != nil && c.err == nil {
		c.err = err
	}
}

// Err 返回收集到的第一个错误。
func (c *Collector) Err() error {
	return c.err
}

// MultiError 持有多个并列错误，Unwrap 返回整组供 Is/As 逐个匹配。
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	switch len(m.Errors) {
	case 0:
		return "no errors"
	case 1:
		return m.Errors[0].Error()
	default:
		return fmt.Sprintf("%v (and %d more errors)", m.Errors[0], len(m.Errors)-1)
	}
}

func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Combine 过滤 nil 后合并错误: 全 nil 返回 nil，单个直接返回，多个聚合为 MultiError。
func Combine(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &MultiError{Errors: nonNil}
	}
}

// ========================================
// 初始化断言
// ========================================

// Must 在 err 非 nil 时 panic，仅用于程序初始化阶段。
func Must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("must: %v", err))
	}
	return v
}

// MustOK 在 ok 为 false 时 panic。
func MustOK[T any](v T, ok bool) T {
	if !ok {
		panic("assertion failed")
	}
	return v
}
