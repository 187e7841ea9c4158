package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AppName 日志中的应用标识
const AppName = "signkit"

var Logger *zap.Logger

// InitLogger 按运行模式初始化全局日志，release 输出 JSON
func InitLogger(mode string) error {
	var config zap.Config

	if mode == "release" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "time"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := config.Build(zap.Fields(zap.String("app", AppName)))
	if err != nil {
		return err
	}

	Logger = logger
	return nil
}

// SetLogger 替换全局日志，测试中注入 Nop 或 observer
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	Logger = l
}

// Named 返回带组件名的子日志；未初始化时返回 Nop
func Named(component string) *zap.Logger {
	if Logger == nil {
		return zap.NewNop()
	}
	return Logger.Named(component)
}

func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}
