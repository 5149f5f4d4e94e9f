package middleware

import (
	"strings"

	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/response"

	"github.com/gin-gonic/gin"
)

// BearerToken 解析 "Bearer <token>" 格式的认证头
func BearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// AuthMiddleware Bearer Token 认证中间件
func AuthMiddleware(validator auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			response.Unauthorized(c, "缺少认证信息")
			c.Abort()
			return
		}

		token, ok := BearerToken(c)
		if !ok {
			response.Unauthorized(c, "认证信息格式错误")
			c.Abort()
			return
		}

		principal, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			if errs.KindOf(err) == errs.KindInternal {
				response.Fail(c, err)
			} else {
				response.Unauthorized(c, err.Error())
			}
			c.Abort()
			return
		}

		auth.SetPrincipal(c, principal)
		c.Next()
	}
}

// AdminMiddleware 管理员权限中间件，需在 AuthMiddleware 之后使用
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := auth.FromGin(c)
		if !ok {
			response.Unauthorized(c, errs.ErrUnauthorized.Message)
			c.Abort()
			return
		}

		if !principal.IsAdmin() {
			response.Forbidden(c, "需要管理员权限")
			c.Abort()
			return
		}

		c.Next()
	}
}
