package ledger

import (
	"volunteer_hub/internal/domain/ledger/handler"
	"volunteer_hub/internal/domain/ledger/repository"
	"volunteer_hub/internal/domain/ledger/service"
	"volunteer_hub/internal/pkg/middleware"
	"volunteer_hub/internal/pkg/registry"

	volunteerRepository "volunteer_hub/internal/domain/volunteer/repository"
)

// LedgerModule 积分流水模块
type LedgerModule struct{}

func init() {
	registry.Register(&LedgerModule{})
}

func (m *LedgerModule) Name() string {
	return "ledger"
}

func (m *LedgerModule) Priority() int {
	return 10
}

func (m *LedgerModule) Init(ctx *registry.ModuleContext) error {
	volunteerRepo := volunteerRepository.NewVolunteerRepository(ctx.DB)
	ledgerService := service.NewLedgerService(repository.NewLedgerRepository(ctx.DB), volunteerRepo, ctx.Tx)
	ledgerHandler := handler.NewLedgerHandler(ledgerService, volunteerRepo)

	authMw := middleware.AuthMiddleware(ctx.Auth)

	volunteer := ctx.Router.Group("/api/volunteer")
	volunteer.Use(authMw)
	{
		volunteer.GET("/:id/point-change-records", ledgerHandler.VolunteerHistory)
	}

	admin := ctx.Router.Group("/api/admin/point-records")
	admin.Use(authMw, middleware.AdminMiddleware())
	{
		admin.GET("", ledgerHandler.AdminList)
		admin.POST("", ledgerHandler.Adjust)
		admin.PUT("/:id", ledgerHandler.Update)
		admin.DELETE("/:id/revert", ledgerHandler.Revert)
	}
	return nil
}
