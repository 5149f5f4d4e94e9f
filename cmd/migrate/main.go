package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"volunteer_hub/internal/pkg/config"
	"volunteer_hub/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dir string
	m   *migrate.Migrate
	log *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "migrate",
		Short: "数据库结构迁移",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return open()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if m != nil {
				m.Close()
			}
			logger.Sync()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&dir, "path", "p", "migrations", "迁移文件目录")

	rootCmd.AddCommand(upCmd(), downCmd(), stepsCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func open() error {
	config.LoadConfig()
	cfg := config.GlobalConfig
	if err := logger.InitLogger(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	log = logger.Log

	var err error
	m, err = migrate.New("file://"+dir, cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("打开迁移源失败: %w", err)
	}
	return nil
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "执行全部未应用的迁移",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return finish(up())
		},
	}
}

func downCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "回滚全部迁移",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return finish(m.Down())
		},
	}
}

func stepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps N",
		Short: "前进 N 步，负数表示回滚",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n == 0 {
				return fmt.Errorf("步数必须是非零整数: %q", args[0])
			}
			return finish(m.Steps(n))
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "查看当前迁移版本",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return finish(nil)
		},
	}
}

// up 数据库处于 dirty 状态时强制回到该版本后重试
func up() error {
	err := m.Up()
	var dirtyErr migrate.ErrDirty
	if !errors.As(err, &dirtyErr) {
		return err
	}

	log.Warn("数据库处于 dirty 状态，强制修复", zap.Int("version", dirtyErr.Version))
	if err := m.Force(dirtyErr.Version); err != nil {
		return err
	}
	return m.Up()
}

func finish(err error) error {
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Error("迁移失败", zap.Error(err))
		return err
	}
	version, dirty, verr := m.Version()
	if errors.Is(verr, migrate.ErrNilVersion) {
		log.Info("尚未执行任何迁移")
		return nil
	}
	log.Info("迁移完成", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
