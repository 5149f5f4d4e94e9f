package common

import (
	"context"
	"errors"

	commonHandler "volunteer_hub/internal/pkg/common"
	"volunteer_hub/internal/pkg/config"
	"volunteer_hub/internal/pkg/middleware"
	"volunteer_hub/internal/pkg/registry"
	"volunteer_hub/internal/pkg/uploader"

	_ "volunteer_hub/docs"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// CommonModule 通用功能模块
type CommonModule struct{}

func init() {
	registry.Register(&CommonModule{})
}

func (m *CommonModule) Name() string {
	return "common"
}

func (m *CommonModule) Priority() int {
	return 100 // 最后初始化
}

func (m *CommonModule) Init(ctx *registry.ModuleContext) error {
	cfg := config.GlobalConfig.COS

	// 对象存储未配置时上传与凭证接口返回错误，服务照常启动
	var up uploader.Uploader
	if u, err := uploader.NewAliyunOSSUploader(cfg); err == nil {
		up = u
	} else if !errors.Is(err, uploader.ErrNotConfigured) {
		return err
	}
	var broker uploader.CredentialBroker
	if b, err := uploader.NewSTSBroker(cfg); err == nil {
		broker = b
	} else if !errors.Is(err, uploader.ErrNotConfigured) {
		return err
	}
	if ctx.Logger != nil && (up == nil || broker == nil) {
		ctx.Logger.Warn("object storage disabled", zap.Bool("upload", up != nil), zap.Bool("sts", broker != nil))
	}

	h := commonHandler.NewHandler(up, broker, healthChecks(ctx))
	setupRoutes(ctx, h)
	return nil
}

func healthChecks(ctx *registry.ModuleContext) map[string]commonHandler.Check {
	checks := make(map[string]commonHandler.Check)
	if ctx.DB != nil {
		checks["database"] = func(c context.Context) error {
			sqlDB, err := ctx.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(c)
		}
	}
	if ctx.Redis != nil {
		checks["redis"] = func(c context.Context) error {
			return ctx.Redis.Ping(c).Err()
		}
	}
	return checks
}

func setupRoutes(ctx *registry.ModuleContext, h *commonHandler.Handler) {
	r := ctx.Router
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(ctx.Auth))
	{
		api.GET("/sts/credential", h.Credential)
		api.POST("/upload", h.UploadFile)
	}
}
