package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"volunteer_hub/internal/domain/ledger/audit"
	"volunteer_hub/internal/pkg/config"
	"volunteer_hub/internal/pkg/worker"
	"volunteer_hub/pkg/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	errInconsistent = errors.New("存在不一致的积分账户")
	errIncomplete   = errors.New("部分账户核对失败")
)

func main() {
	var (
		workers int
		timeout time.Duration
	)

	rootCmd := &cobra.Command{
		Use:          "ledger_audit",
		Short:        "核对志愿者积分余额与流水",
		Long:         "逐个志愿者核对 points_balance 是否等于流水合计，以及每条流水的 balance_after 是否连续。\n退出码: 2 表示发现不一致，1 表示核对本身失败。",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), workers, timeout)
		},
	}
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 8, "并发核对的协程数")
	rootCmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Minute, "整体超时")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if errors.Is(err, errInconsistent) {
		os.Exit(2)
	}
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, workers int, timeout time.Duration) error {
	config.LoadConfig()
	cfg := config.GlobalConfig
	if err := logger.InitLogger(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()
	log := logger.Log

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "pgx", cfg.Database.URL())
	if err != nil {
		log.Error("数据库连接失败", zap.Error(err))
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(workers)

	auditor := audit.NewAuditor(db)
	accounts, err := auditor.Accounts(ctx)
	if err != nil {
		log.Error("读取志愿者失败", zap.Error(err))
		return err
	}

	var (
		mu       sync.Mutex
		broken   int
		failures int
	)
	pool := worker.NewPool(worker.Options{Workers: workers, MaxRetry: 2, Backoff: 200 * time.Millisecond},
		func(ctx context.Context, acc audit.Account) error {
			f, err := auditor.Check(ctx, acc)
			if err != nil {
				return err
			}
			if !f.OK() {
				mu.Lock()
				broken++
				mu.Unlock()
				log.Error("积分流水不一致",
					zap.Int64("volunteer_id", f.VolunteerID),
					zap.String("balance", f.Balance.StringFixed(2)),
					zap.String("sum", f.Sum.StringFixed(2)),
					zap.Strings("problems", f.Problems))
			}
			return nil
		}, log)
	pool.OnDeadLetter(func(acc audit.Account, err error) {
		mu.Lock()
		failures++
		mu.Unlock()
		log.Error("核对失败", zap.Int64("volunteer_id", acc.ID), zap.Error(err))
	})

	start := time.Now()
	pool.Start(ctx)
	for _, acc := range accounts {
		if err := pool.Submit(ctx, acc); err != nil {
			log.Warn("核对中断", zap.Error(err))
			break
		}
	}
	pool.Close()

	log.Info("核对结束",
		zap.Int("volunteers", len(accounts)),
		zap.Int("inconsistent", broken),
		zap.Int("failed", failures),
		zap.Duration("elapsed", time.Since(start)))

	if broken > 0 {
		return errInconsistent
	}
	if failures > 0 {
		return errIncomplete
	}
	return nil
}
