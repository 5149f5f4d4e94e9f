package auth

import (
	"context"

	"github.com/gin-gonic/gin"
)

// 角色
const (
	RoleUser      = "USER"
	RoleVolunteer = "VOLUNTEER"
	RoleAdmin     = "ADMIN"
)

// ValidRole 是否为合法角色
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleVolunteer, RoleAdmin:
		return true
	}
	return false
}

// Principal 当前请求的调用者，显式传给各业务服务
type Principal struct {
	UserID   int64
	Username string
	Role     string
	Token    string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// TokenValidator 校验 Bearer Token 并返回调用者
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Principal, error)
}

const principalKey = "principal"

// SetPrincipal 写入 gin 上下文
func SetPrincipal(c *gin.Context, p *Principal) {
	c.Set(principalKey, p)
}

// FromGin 从 gin 上下文读取调用者
func FromGin(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok && p != nil
}
