// Package logging builds the transcoder's structured logger: two
// independent zap cores, one rotated file sink and one console sink, tee'd
// together so each can run at its own minimum level.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config mirrors config.LogConfig without importing internal/config, to
// keep this package leaf-level.
type Config struct {
	FilePath     string
	FileRoot     string
	FileLevel    uint32
	DisplayLevel uint32
}

// levelFromConfig maps the numeric config levels (0=debug .. 5=fatal) onto
// zapcore levels.
func levelFromConfig(n uint32) zapcore.Level {
	switch n {
	case 0:
		return zapcore.DebugLevel
	case 1:
		return zapcore.InfoLevel
	case 2:
		return zapcore.WarnLevel
	case 3:
		return zapcore.ErrorLevel
	case 4:
		return zapcore.DPanicLevel
	default:
		return zapcore.FatalLevel
	}
}

// New builds a *zap.Logger with a console core at cfg.DisplayLevel and a
// lumberjack-rotated file core at cfg.FileLevel, combined with
// zapcore.NewTee so both sinks receive every entry their level permits.
func New(cfg Config) (*zap.Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
	consoleCore := zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), levelFromConfig(cfg.DisplayLevel))

	cores := []zapcore.Core{consoleCore}

	if cfg.FilePath != "" && cfg.FileRoot != "" {
		filename := filepath.Join(cfg.FilePath, fmt.Sprintf("%s-%s.log", cfg.FileRoot, time.Now().Format("20060102")))
		fileWriter := &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    100, // MB
			MaxBackups: 7,
			MaxAge:     28, // days
			Compress:   true,
		}
		jsonEncoder := zapcore.NewJSONEncoder(encoderConfig)
		fileCore := zapcore.NewCore(jsonEncoder, zapcore.AddSync(fileWriter), levelFromConfig(cfg.FileLevel))
		cores = append(cores, fileCore)
	}

	core := zapcore.NewTee(cores...)
	// Every process run gets its own correlation id so log lines from this
	// run can be grepped out of a shared file even across restarts.
	sessionID := uuid.New().String()
	return zap.New(core, zap.AddCaller()).With(zap.String("session", sessionID)), nil
}
