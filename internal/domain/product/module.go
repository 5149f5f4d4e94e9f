package product

import (
	"volunteer_hub/internal/domain/product/handler"
	"volunteer_hub/internal/domain/product/repository"
	"volunteer_hub/internal/domain/product/service"
	"volunteer_hub/internal/pkg/middleware"
	"volunteer_hub/internal/pkg/registry"

	ledgerRepository "volunteer_hub/internal/domain/ledger/repository"
	ledgerService "volunteer_hub/internal/domain/ledger/service"
	volunteerRepository "volunteer_hub/internal/domain/volunteer/repository"
)

// ProductModule 商品目录与兑换模块
type ProductModule struct{}

func init() {
	registry.Register(&ProductModule{})
}

func (m *ProductModule) Name() string {
	return "product"
}

func (m *ProductModule) Priority() int {
	return 30
}

func (m *ProductModule) Init(ctx *registry.ModuleContext) error {
	volunteerRepo := volunteerRepository.NewVolunteerRepository(ctx.DB)
	productRepo := repository.NewProductRepository(ctx.DB)
	ledger := ledgerService.NewLedgerService(ledgerRepository.NewLedgerRepository(ctx.DB), volunteerRepo, ctx.Tx)

	productService := service.NewProductService(productRepo, ctx.Tx)
	exchangeService := service.NewExchangeService(productRepo, repository.NewExchangeRepository(ctx.DB), volunteerRepo, ledger, ctx.Tx)
	h := handler.NewProductHandler(productService, exchangeService, volunteerRepo)

	authMw := middleware.AuthMiddleware(ctx.Auth)
	adminMw := middleware.AdminMiddleware()

	product := ctx.Router.Group("/api/product")
	product.Use(authMw)
	{
		product.GET("/get-products", h.List)
		product.POST("/exchange", h.Exchange)
	}

	volunteer := ctx.Router.Group("/api/volunteer")
	volunteer.Use(authMw)
	{
		volunteer.GET("/:id/exchange-records", h.VolunteerExchanges)
		volunteer.DELETE("/:id/exchange-records/:recordId", h.CancelExchange)
	}

	exchanges := ctx.Router.Group("/api/admin/exchange-records")
	exchanges.Use(authMw, adminMw)
	{
		exchanges.GET("", h.AdminExchanges)
		exchanges.POST("/:id/approve", h.Approve)
		exchanges.POST("/:id/reject", h.Reject)
	}

	products := ctx.Router.Group("/api/admin/products")
	products.Use(authMw, adminMw)
	{
		products.GET("", h.AdminProducts)
		products.POST("", h.CreateProduct)
		products.PUT("/:id", h.UpdateProduct)
		products.DELETE("/:id", h.DeleteProduct)
	}
	return nil
}
