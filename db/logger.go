package db

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// slowQuery is the threshold above which statements are logged at warn.
const slowQuery = 200 * time.Millisecond

// Logger routes gorm's logging into zap. Only errors and slow statements
// are reported; record-not-found is expected and ignored.
type Logger struct {
	l     *zap.Logger
	level gormlogger.LogLevel
}

func NewLogger(l *zap.Logger) *Logger {
	return &Logger{l: l.Named("db"), level: gormlogger.Warn}
}

func (g *Logger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *g
	cp.level = level
	return &cp
}

func (g *Logger) Info(_ context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Info {
		g.l.Sugar().Infof(msg, args...)
	}
}

func (g *Logger) Warn(_ context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Warn {
		g.l.Sugar().Warnf(msg, args...)
	}
}

func (g *Logger) Error(_ context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Error {
		g.l.Sugar().Errorf(msg, args...)
	}
}

func (g *Logger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	took := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && g.level >= gormlogger.Error:
		sql, rows := fc()
		g.l.Error("query failed", zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("took", took), zap.Error(err))
	case took > slowQuery && g.level >= gormlogger.Warn:
		sql, rows := fc()
		g.l.Warn("slow query", zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("took", took))
	case g.level >= gormlogger.Info:
		sql, rows := fc()
		g.l.Debug("query", zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("took", took))
	}
}
