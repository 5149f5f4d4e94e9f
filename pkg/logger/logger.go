package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log 全局日志实例，InitLogger 之前为 no-op
var Log = zap.NewNop()

// Options 日志配置
type Options struct {
	Level  string
	Format string // json | console
}

// NewLogger 根据配置构建 Zap 日志实例
func NewLogger(opts Options) (*zap.Logger, error) {
	var zapCfg zap.Config

	switch opts.Format {
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		zapCfg = zap.NewProductionConfig()
	}

	if opts.Level == "" {
		opts.Level = "info"
	}
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("无效的日志级别 %q: %w", opts.Level, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.TimeKey = "time"
	zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")

	l, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("初始化日志器失败: %w", err)
	}
	return l, nil
}

// InitLogger 初始化全局日志
func InitLogger(opts Options) error {
	l, err := NewLogger(opts)
	if err != nil {
		return err
	}
	Log = l
	zap.ReplaceGlobals(l)
	return nil
}

// Sync 刷新缓冲
func Sync() {
	_ = Log.Sync()
}
