package activity

import (
	"volunteer_hub/internal/domain/activity/handler"
	"volunteer_hub/internal/domain/activity/repository"
	"volunteer_hub/internal/domain/activity/service"
	"volunteer_hub/internal/pkg/middleware"
	"volunteer_hub/internal/pkg/registry"

	ledgerRepository "volunteer_hub/internal/domain/ledger/repository"
	ledgerService "volunteer_hub/internal/domain/ledger/service"
	volunteerRepository "volunteer_hub/internal/domain/volunteer/repository"
)

// ActivityModule 活动与报名模块
type ActivityModule struct{}

func init() {
	registry.Register(&ActivityModule{})
}

func (m *ActivityModule) Name() string {
	return "activity"
}

func (m *ActivityModule) Priority() int {
	return 20
}

func (m *ActivityModule) Init(ctx *registry.ModuleContext) error {
	volunteerRepo := volunteerRepository.NewVolunteerRepository(ctx.DB)
	activityRepo := repository.NewActivityRepository(ctx.DB)
	signupRepo := repository.NewSignupRepository(ctx.DB)
	ledger := ledgerService.NewLedgerService(ledgerRepository.NewLedgerRepository(ctx.DB), volunteerRepo, ctx.Tx)

	activityService := service.NewActivityService(activityRepo, signupRepo, volunteerRepo, ctx.Tx)
	signupService := service.NewSignupService(activityRepo, signupRepo, volunteerRepo, ledger, ctx.Tx)
	h := handler.NewActivityHandler(activityService, signupService, volunteerRepo)

	authMw := middleware.AuthMiddleware(ctx.Auth)

	activity := ctx.Router.Group("/api/activity")
	activity.Use(authMw)
	{
		activity.GET("/get-activities", h.List)
		activity.POST("/signup", h.Signup)
		activity.POST("/cancel-signup", h.CancelSignup)
	}

	volunteer := ctx.Router.Group("/api/volunteer")
	volunteer.Use(authMw)
	{
		volunteer.GET("/:id/signup-records", h.VolunteerSignups)
	}

	admin := ctx.Router.Group("/api/admin/activities")
	admin.Use(authMw, middleware.AdminMiddleware())
	{
		admin.GET("", h.List)
		admin.POST("", h.Create)
		admin.PUT("/:id", h.Update)
		admin.DELETE("/:id", h.Cancel)
		admin.GET("/:id/signups", h.ListSignups)
		admin.PUT("/:id/signups/:signupId", h.Settle)
	}
	return nil
}
