package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 业务错误类别，同时作为响应中的 code 字段
type Kind string

const (
	KindNotFound               Kind = "NOT_FOUND"
	KindNotCertified           Kind = "NOT_CERTIFIED"
	KindCapacityFull           Kind = "CAPACITY_FULL"
	KindAlreadySignedUp        Kind = "ALREADY_SIGNED_UP"
	KindNotSignedUp            Kind = "NOT_SIGNED_UP"
	KindActivityClosed         Kind = "ACTIVITY_CLOSED"
	KindProductUnavailable     Kind = "PRODUCT_UNAVAILABLE"
	KindInsufficientStock      Kind = "INSUFFICIENT_STOCK"
	KindInsufficientPoints     Kind = "INSUFFICIENT_POINTS"
	KindAlreadyProcessed       Kind = "ALREADY_PROCESSED"
	KindValidation             Kind = "VALIDATION"
	KindAuth                   Kind = "AUTH"
	KindForbidden              Kind = "FORBIDDEN"
	KindConflictRetryExhausted Kind = "CONFLICT_RETRY_EXHAUSTED"
	KindTimeout                Kind = "TIMEOUT"
	KindInternal               Kind = "INTERNAL"
)

// InternalMessage 对外暴露的内部错误提示
const InternalMessage = "服务器内部错误"

// Error 携带类别与稳定中文提示的业务错误
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is 同类别即视为相等，便于 errors.Is(err, errs.ErrXxx) 判断
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatus 错误类别对应的 HTTP 状态码
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflictRetryExhausted:
		return http.StatusConflict
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf 返回错误类别，非业务错误一律视为 INTERNAL
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is 判断错误链中是否存在指定类别的业务错误
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// 常用错误
var (
	ErrNotCertified           = New(KindNotCertified, "您还未申请成为志愿者或志愿者身份未认证")
	ErrCapacityFull           = New(KindCapacityFull, "活动报名人数已满")
	ErrAlreadySignedUp        = New(KindAlreadySignedUp, "您已经报名了该活动")
	ErrNotSignedUp            = New(KindNotSignedUp, "您还未报名该活动")
	ErrActivityClosed         = New(KindActivityClosed, "该活动当前不接受报名")
	ErrProductUnavailable     = New(KindProductUnavailable, "该商品当前不可兑换")
	ErrInsufficientStock      = New(KindInsufficientStock, "商品库存不足")
	ErrInsufficientPoints     = New(KindInsufficientPoints, "您的积分不足")
	ErrAlreadyProcessed       = New(KindAlreadyProcessed, "该记录已被处理，无法重复操作")
	ErrUnauthorized           = New(KindAuth, "Token不存在或已失效")
	ErrForbidden              = New(KindForbidden, "无权执行该操作")
	ErrConflictRetryExhausted = New(KindConflictRetryExhausted, "操作冲突，请稍后重试")
	ErrTimeout                = New(KindTimeout, "操作超时，请稍后重试")
)
