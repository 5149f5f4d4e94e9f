package volunteer

import (
	"volunteer_hub/internal/domain/volunteer/handler"
	"volunteer_hub/internal/domain/volunteer/repository"
	"volunteer_hub/internal/domain/volunteer/service"
	"volunteer_hub/internal/pkg/middleware"
	"volunteer_hub/internal/pkg/registry"

	userRepository "volunteer_hub/internal/domain/user/repository"
)

// VolunteerModule 志愿者审核模块
type VolunteerModule struct{}

func init() {
	registry.Register(&VolunteerModule{})
}

func (m *VolunteerModule) Name() string {
	return "volunteer"
}

func (m *VolunteerModule) Priority() int {
	// 依赖 user 模块提供的认证
	return 5
}

func (m *VolunteerModule) Init(ctx *registry.ModuleContext) error {
	volunteerRepo := repository.NewVolunteerRepository(ctx.DB)
	userRepo := userRepository.NewUserRepository(ctx.DB)
	volunteerService := service.NewVolunteerService(volunteerRepo, userRepo, ctx.Tx)
	volunteerHandler := handler.NewVolunteerHandler(volunteerService)

	setupRoutes(ctx, volunteerHandler)
	return nil
}

func setupRoutes(ctx *registry.ModuleContext, h *handler.VolunteerHandler) {
	admin := ctx.Router.Group("/api/admin/volunteers")
	admin.Use(middleware.AuthMiddleware(ctx.Auth), middleware.AdminMiddleware())
	{
		admin.GET("", h.List)
		admin.POST("/:id/review", h.Review)
	}
}
