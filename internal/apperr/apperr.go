// Package apperr 定义了服务边界上使用的错误分类。
// 各层内部仍然使用 fmt.Errorf("...: %w") 包装，只有在需要区分错误种类的地方才转换为 *Error。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 表示错误的种类，决定了 HTTP 层返回的状态码。
type Kind string

const (
	UnsupportedFormat  Kind = "UnsupportedFormat"
	ExtractionFailed   Kind = "ExtractionFailed"
	EmptyDocument      Kind = "EmptyDocument"
	EmbeddingFailed    Kind = "EmbeddingFailed"
	StorageWriteFailed Kind = "StorageWriteFailed"
	StorageReadFailed  Kind = "StorageReadFailed"
	Unauthorized       Kind = "Unauthorized"
	BadInput           Kind = "BadInput"
	Internal           Kind = "Internal"
)

// Error 携带错误种类、面向调用方的描述以及底层原因。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, apperr.New(kind, "")) 这种按种类比较的写法成立。
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// New 创建一个不带底层原因的错误。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf 与 New 相同，但支持格式化。
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 用指定种类包装一个已有错误；err 为 nil 时返回 nil。
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf 返回错误链上第一个 *Error 的种类，找不到时视为 Internal。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind 判断错误链上是否存在指定种类的 *Error。
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus 把错误种类映射为 HTTP 状态码。
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Unauthorized:
		return http.StatusUnauthorized
	case UnsupportedFormat, EmptyDocument, BadInput:
		return http.StatusBadRequest
	case ExtractionFailed:
		return http.StatusUnprocessableEntity
	case EmbeddingFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message 返回适合直接放进响应体的描述，非 *Error 时给出通用文案。
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "服务内部错误"
}
