// Package logger wires a process-wide zap logger: a console core for the
// terminal and a JSON core writing to daily-rotated files.
package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls level, format and the rotating file sink. An empty Path
// disables the file core.
type Config struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json console"`
	Path   string `mapstructure:"path"`
	MaxAge int    `mapstructure:"max_age" validate:"gte=0"`
}

var (
	base        *zap.Logger
	initOnce    sync.Once
	initialized bool
)

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init builds the global logger. Safe to call more than once; only the first
// call takes effect.
func Init(cfg Config) error {
	var err error
	initOnce.Do(func() {
		level := parseLevel(cfg.Level)

		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000 -07:00")
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		var consoleEncoder zapcore.Encoder
		if cfg.Format == "json" {
			consoleEncoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		} else {
			consoleEncoder = zapcore.NewConsoleEncoder(consoleCfg)
		}

		cores := []zapcore.Core{
			zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stderr), level),
		}

		if cfg.Path != "" {
			if err = os.MkdirAll(cfg.Path, 0o755); err != nil {
				return
			}

			maxAge := cfg.MaxAge
			if maxAge <= 0 {
				maxAge = 7
			}
			var writer *rotatelogs.RotateLogs
			writer, err = rotatelogs.New(
				filepath.Join(cfg.Path, "dirsrv-monitor-%Y%m%d.log"),
				rotatelogs.WithMaxAge(time.Duration(maxAge)*24*time.Hour),
				rotatelogs.WithRotationTime(24*time.Hour),
			)
			if err != nil {
				return
			}

			jsonCfg := zap.NewProductionEncoderConfig()
			jsonCfg.TimeKey = "timestamp"
			jsonCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000 -07:00")
			jsonCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), zapcore.AddSync(writer), level))
		}

		base = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
		initialized = true
	})
	return err
}

// L returns the underlying zap logger for callers that need to pass one on.
func L() *zap.Logger {
	if !initialized {
		// Early startup errors must still be visible before Init runs.
		l, _ := zap.NewDevelopment()
		return l
	}
	return base
}

func Debug(msg string, fields ...zap.Field) { L().WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { L().WithOptions(zap.AddCallerSkip(1)).Fatal(msg, fields...) }

// Sync flushes buffered log entries. Stderr sync errors are ignored.
func Sync() error {
	if !initialized {
		return nil
	}
	err := base.Sync()
	if err != nil && (strings.Contains(err.Error(), "/dev/stderr") || strings.Contains(err.Error(), "/dev/stdout")) {
		return nil
	}
	return err
}
