package gormx

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/logging"
)

// gormLogger 把 gorm 日志转发到 logging 组件
type gormLogger struct {
	tag           string
	level         logger.LogLevel
	slowThreshold time.Duration
}

// NewLogger level: silent|error|warn|info|debug
func NewLogger(tag, level string, slow time.Duration) logger.Interface {
	lvl := logger.Warn
	switch strings.ToLower(level) {
	case "silent":
		lvl = logger.Silent
	case "error":
		lvl = logger.Error
	case "info", "debug":
		lvl = logger.Info
	}
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	return &gormLogger{tag: "[" + tag + "] ", level: lvl, slowThreshold: slow}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	nl := *l
	nl.level = level
	return &nl
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		logging.Infof(ctx, l.tag+msg, data...)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		logging.Warnf(ctx, l.tag+msg, data...)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		logging.Errorf(ctx, l.tag+msg, data...)
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		sqlStr, rows := fc()
		logging.Errorf(ctx, "%serror elapsed=%s rows=%d sql=%s err=%v", l.tag, elapsed, rows, sqlStr, err)
	case elapsed > l.slowThreshold && l.level >= logger.Warn:
		sqlStr, rows := fc()
		logging.Warnf(ctx, "%sslow elapsed=%s threshold=%s rows=%d sql=%s", l.tag, elapsed, l.slowThreshold, rows, sqlStr)
	case l.level >= logger.Info:
		sqlStr, rows := fc()
		logging.Debugf(ctx, "%selapsed=%s rows=%d sql=%s", l.tag, elapsed, rows, sqlStr)
	}
}
