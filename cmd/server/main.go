// @title Volunteer Hub API
// @version 1.0
// @description 志愿者积分与兑换服务
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"volunteer_hub/internal/pkg/config"
	"volunteer_hub/internal/pkg/middleware"
	"volunteer_hub/internal/pkg/registry"
	"volunteer_hub/internal/pkg/txn"
	"volunteer_hub/pkg/cache"
	"volunteer_hub/pkg/database"
	"volunteer_hub/pkg/logger"

	// 各业务模块在 init 中注册自身
	_ "volunteer_hub/internal/domain/activity"
	_ "volunteer_hub/internal/domain/common"
	_ "volunteer_hub/internal/domain/ledger"
	_ "volunteer_hub/internal/domain/product"
	_ "volunteer_hub/internal/domain/user"
	_ "volunteer_hub/internal/domain/volunteer"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	// 1. 加载配置
	config.LoadConfig()
	cfg := config.GlobalConfig

	// 2. 初始化日志
	if err := logger.InitLogger(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Log

	// 3. 连接数据库与 Redis
	db, err := database.InitDatabase(cfg.Database, cfg.App.Debug)
	if err != nil {
		log.Fatal("数据库连接失败", zap.Error(err))
	}
	rdb, err := database.InitRedis(cfg.Redis)
	if err != nil {
		log.Fatal("Redis 连接失败", zap.Error(err))
	}

	// 4. 路由与中间件
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimit.QPS), cfg.RateLimit.Burst)
	r.Use(
		middleware.LoggerMiddleware(),
		middleware.RecoveryMiddleware(),
		middleware.CORSMiddleware(),
		middleware.MetricsMiddleware(),
		middleware.RateLimitMiddleware(limiter),
	)

	// 5. 初始化模块
	background, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	moduleCtx := &registry.ModuleContext{
		DB:         db,
		Redis:      rdb,
		Cache:      cache.NewRedisCache(rdb, ""),
		Router:     r,
		Logger:     log,
		Tx:         txn.NewManager(db, cfg.Transaction),
		Background: background,
	}
	if err := registry.InitModules(moduleCtx); err != nil {
		log.Fatal("模块初始化失败", zap.Error(err))
	}

	go database.NewPoolMonitor(db, log, 15*time.Second).Run(background)

	// 6. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("收到关闭信号，开始优雅关闭", zap.String("signal", sig.String()))

	stopBackground()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("服务器关闭异常", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	rdb.Close()
	log.Info("服务器已关闭")
}
