package server

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 进程级日志；InitLogger 前不输出
var Log = zap.NewNop().Sugar()

// InitLogger 按级别同时写滚动文件和 stdout
func InitLogger(filePath, level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	enc := zapcore.NewConsoleEncoder(logEncoderConfig())
	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.AddSync(rotatingFile(filePath)), lvl),
		zapcore.NewCore(enc, zapcore.Lock(os.Stdout), lvl),
	)
	Log = zap.New(core, zap.AddCaller()).Sugar()
	return nil
}

// rotatingFile 单文件 10MB，保留 3 份、7 天
func rotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
	}
}

func logEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.StacktraceKey = "stack"
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

func SyncLogger() {
	_ = Log.Sync()
}
