package logger

import (
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// New creates a zap logger configured based on environment variables.
// If APP_ENV or LOG_ENV is set to "production", a production logger is returned; otherwise a development logger.
// When LOG_FILE is set, entries are also written to a rotating file.
func New() (*zap.Logger, error) {
	env := os.Getenv("LOG_ENV")
	if env == "" {
		env = os.Getenv("APP_ENV")
	}

	var (
		cfg  zap.Config
		opts []zap.Option
	)
	if env == "production" {
		cfg = zap.NewProductionConfig()
		// Include caller and stacktrace on error in production
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		opts = []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		opts = []zap.Option{zap.AddCaller()}
	}

	if path := os.Getenv("LOG_FILE"); path != "" {
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore(path, cfg.Level))
		}))
	}

	return cfg.Build(opts...)
}

// fileCore writes JSON entries to a lumberjack-rotated file.
func fileCore(path string, level zap.AtomicLevel) zapcore.Core {
	maxAge := 7
	if v, err := strconv.Atoi(os.Getenv("LOG_MAX_AGE_DAYS")); err == nil && v > 0 {
		maxAge = v
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename: path,
		MaxAge:   maxAge,
		MaxSize:  100,
		Compress: true,
	})
	return zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, level)
}

// Must returns a logger or a no-op logger when construction fails.
func Must() *zap.Logger {
	l, err := New()
	if err != nil {
		return zap.NewNop()
	}
	return l
}
