// internal/pkg/apperr/apperr.go
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 标识业务错误的分类，每个分类对应一个固定的 HTTP 状态码。
type Kind int

const (
	KindInvalidInput Kind = iota + 1 // 参数非法，400
	KindNotFound                     // 资源不存在，404
	KindConflict                     // 状态与请求冲突，409
	KindInsufficientStock            // 可用库存不足，409
	KindUnavailable                  // 下游服务超时或不可达，502
	KindForbidden                    // 角色或归属校验失败，403
)

// Error 是整个系统统一的业务错误类型。
type Error struct {
	Kind    Kind
	Message string
	// Available 仅在 KindInsufficientStock 时有意义，携带当前可用数量。
	Available int
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus 返回该错误应映射到的 HTTP 状态码。
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInsufficientStock:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func InvalidInput(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStock 构造一个携带可用数量的库存不足错误。
func InsufficientStock(available int) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		Message:   fmt.Sprintf("Insufficient stock. Available quantity: %d", available),
		Available: available,
	}
}

func Unavailable(message string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, cause: cause}
}

func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// IsKind 判断 err 是否为指定分类的业务错误。
func IsKind(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// FromStatus 把下游服务返回的 HTTP 状态码折算成本地错误分类。
// 上游的鉴权失败与 5xx 对调用方来说都是"下游不可用"，不能误判为资源不存在。
func FromStatus(status int, message string) *Error {
	if message == "" {
		message = "upstream service error"
	}
	switch {
	case status == http.StatusNotFound:
		return NotFound("%s", message)
	case status == http.StatusBadRequest:
		return InvalidInput("%s", message)
	case status == http.StatusConflict:
		return Conflict("%s", message)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Unavailable(message, nil)
	case status >= 500:
		return Unavailable(message, nil)
	default:
		return Unavailable(message, nil)
	}
}
