package user

import (
	"context"
	"fmt"
	"time"

	"volunteer_hub/internal/domain/user/handler"
	"volunteer_hub/internal/domain/user/repository"
	"volunteer_hub/internal/domain/user/service"
	"volunteer_hub/internal/pkg/config"
	"volunteer_hub/internal/pkg/middleware"
	"volunteer_hub/internal/pkg/registry"

	activityRepository "volunteer_hub/internal/domain/activity/repository"
	activityService "volunteer_hub/internal/domain/activity/service"
	ledgerRepository "volunteer_hub/internal/domain/ledger/repository"
	ledgerService "volunteer_hub/internal/domain/ledger/service"
	volunteerRepository "volunteer_hub/internal/domain/volunteer/repository"

	"go.uber.org/zap"
)

const tokenPurgeInterval = time.Hour

// UserModule 用户模块
type UserModule struct{}

func init() {
	// 自动注册模块
	registry.Register(&UserModule{})
}

func (m *UserModule) Name() string {
	return "user"
}

func (m *UserModule) Priority() int {
	// 其他模块的认证中间件依赖这里设置的 ctx.Auth
	return 1
}

func (m *UserModule) Init(ctx *registry.ModuleContext) error {
	userRepo := repository.NewUserRepository(ctx.DB)
	tokenRepo := repository.NewTokenRepository(ctx.DB)
	volunteerRepo := volunteerRepository.NewVolunteerRepository(ctx.DB)

	ledger := ledgerService.NewLedgerService(ledgerRepository.NewLedgerRepository(ctx.DB), volunteerRepo, ctx.Tx)
	activities := activityService.NewActivityService(
		activityRepository.NewActivityRepository(ctx.DB),
		activityRepository.NewSignupRepository(ctx.DB),
		volunteerRepo,
		ctx.Tx,
	)

	authService := service.NewAuthService(userRepo, tokenRepo, volunteerRepo, ctx.Cache, ctx.Tx)
	userService := service.NewUserService(userRepo, volunteerRepo, ledger, activities, authService, ctx.Tx)
	h := handler.NewUserHandler(authService, userService)

	ctx.Auth = authService

	if admin := config.GlobalConfig.Admin; admin.Username != "" {
		if _, err := authService.EnsureAdmin(context.Background(), admin.Username, admin.Password); err != nil {
			return fmt.Errorf("初始化管理员账号失败: %w", err)
		}
	}

	authGroup := ctx.Router.Group("/api/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/register", h.Register)
		authGroup.POST("/logout", h.Logout)
	}

	userGroup := ctx.Router.Group("/api/user")
	userGroup.Use(middleware.AuthMiddleware(ctx.Auth))
	{
		userGroup.GET("/:userId/profile", h.Profile)
		userGroup.PUT("/:userId/profile", h.UpdateProfile)
		userGroup.PUT("/:userId/password", h.ChangePassword)
		userGroup.POST("/:userId/volunteer-apply", h.ApplyVolunteer)
	}

	if ctx.Background != nil {
		go purgeExpiredTokens(ctx.Background, authService, ctx.Logger)
	}
	return nil
}

// purgeExpiredTokens 定期清理过期令牌
func purgeExpiredTokens(ctx context.Context, svc service.AuthService, log *zap.Logger) {
	ticker := time.NewTicker(tokenPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PurgeExpired(ctx)
			if err != nil {
				log.Warn("purge expired tokens failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("expired tokens purged", zap.Int64("count", n))
			}
		}
	}
}
