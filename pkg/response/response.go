package response

import (
	"errors"
	"net/http"
	"time"

	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestIDKey 请求 ID 在 gin.Context 中的键 (由 LoggerMiddleware 设置)
const RequestIDKey = "RequestID"

const timestampLayout = "2006-01-02 15:04:05"

// ErrorBody 统一错误响应结构
type ErrorBody struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Code      string `json:"code"`
}

// Success 成功响应，直接返回数据本身
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created 201 创建成功
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// NoContent 204
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Message 仅返回提示信息
func Message(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// Error 错误响应
func Error(c *gin.Context, httpCode int, kind errs.Kind, msg string) {
	c.JSON(httpCode, ErrorBody{
		Timestamp: time.Now().Format(timestampLayout),
		Message:   msg,
		Code:      string(kind),
	})
}

// BadRequest 参数错误 400
func BadRequest(c *gin.Context, msg string) {
	Error(c, http.StatusBadRequest, errs.KindValidation, msg)
}

// Unauthorized 401
func Unauthorized(c *gin.Context, msg string) {
	Error(c, http.StatusUnauthorized, errs.KindAuth, msg)
}

// Forbidden 403
func Forbidden(c *gin.Context, msg string) {
	Error(c, http.StatusForbidden, errs.KindForbidden, msg)
}

// Fail 根据错误类型输出响应：业务错误返回其提示，其余错误记录日志后返回通用提示
func Fail(c *gin.Context, err error) {
	var appErr *errs.Error
	if errors.As(err, &appErr) && appErr.Kind != errs.KindInternal {
		Error(c, appErr.HTTPStatus(), appErr.Kind, appErr.Message)
		return
	}

	logger.Log.Error("request failed",
		zap.String("request_id", c.GetString(RequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	Error(c, http.StatusInternalServerError, errs.KindInternal, errs.InternalMessage)
}
