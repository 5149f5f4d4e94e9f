package registry

import (
	"context"
	"fmt"
	"sort"

	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/internal/pkg/txn"
	"volunteer_hub/pkg/cache"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ModuleContext 模块初始化所需的上下文
type ModuleContext struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Cache  cache.CacheService
	Router *gin.Engine
	Logger *zap.Logger
	Tx     txn.Runner

	// Auth 由 user 模块初始化时设置，其余模块用于构造认证中间件
	Auth auth.TokenValidator

	// Background 后台任务的生命周期，服务关闭时取消
	Background context.Context
}

// Module 模块接口
type Module interface {
	// Name 返回模块名称
	Name() string

	// Init 初始化模块（依赖注入、路由注册等）
	Init(ctx *ModuleContext) error

	// Priority 返回初始化优先级（数字越小越先初始化）
	Priority() int
}

// moduleRegistry 全局模块注册表
var moduleRegistry = make(map[string]Module)

// Register 注册模块，同名模块重复注册直接 panic
func Register(module Module) {
	if _, dup := moduleRegistry[module.Name()]; dup {
		panic("registry: module registered twice: " + module.Name())
	}
	moduleRegistry[module.Name()] = module
}

// ordered 按优先级排序，同优先级按名称
func ordered() []Module {
	modules := make([]Module, 0, len(moduleRegistry))
	for _, m := range moduleRegistry {
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool {
		if modules[i].Priority() == modules[j].Priority() {
			return modules[i].Name() < modules[j].Name()
		}
		return modules[i].Priority() < modules[j].Priority()
	})
	return modules
}

// InitModules 按优先级初始化所有模块，遇到第一个错误即停止
func InitModules(ctx *ModuleContext) error {
	for _, module := range ordered() {
		if err := module.Init(ctx); err != nil {
			return fmt.Errorf("init module %s: %w", module.Name(), err)
		}
		if ctx.Logger != nil {
			ctx.Logger.Info("module initialized", zap.String("module", module.Name()), zap.Int("priority", module.Priority()))
		}
	}
	return nil
}
