// Package logging builds the zap logger used by the command line tools.
package logging

import (
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/btree-query-bench/pagetree/config"
)

// New returns a JSON logger writing to a rotating file when
// cfg.FileLogName is set, and a console logger on stderr otherwise.
func New(cfg config.Logger) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "logging: level %q", cfg.LogLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var core zapcore.Core
	if cfg.FileLogName != "" {
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FileLogName,
			MaxSize:    cfg.MaxSize, // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		})
		core = zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, level)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
	}
	return zap.New(core, zap.AddCaller()), nil
}
