package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/timelyrain333/bifang-sub000/infra/application/consts"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
)

// 全局函数 + 组件方法 + emit
const callerSkip = 3

type Logger interface {
	Debug(ctx context.Context, msg string, fields ...zap.Field)
	Info(ctx context.Context, msg string, fields ...zap.Field)
	Warn(ctx context.Context, msg string, fields ...zap.Field)
	Error(ctx context.Context, msg string, fields ...zap.Field)
	Fatal(ctx context.Context, msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
	Sync() error
}

type LoggerComponent struct {
	*core.BaseComponent
	config    *LoggingConfig
	zapLogger *zap.Logger
}

func NewLoggerComponent(cfg *LoggingConfig) *LoggerComponent {
	return &LoggerComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_LOGGING),
		config:        cfg,
	}
}

func (lc *LoggerComponent) Start(ctx context.Context) error {
	if err := lc.BaseComponent.Start(ctx); err != nil {
		return err
	}
	ws, err := lc.buildWriteSyncer()
	if err != nil {
		return fmt.Errorf("failed to create write syncer: %w", err)
	}
	level, err := zapcore.ParseLevel(strings.ToLower(lc.config.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}
	lc.zapLogger = zap.New(
		zapcore.NewCore(lc.buildEncoder(), ws, level),
		zap.AddCaller(),
		zap.AddCallerSkip(callerSkip),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	lc.zapLogger.Info("logger component started",
		zap.String("level", level.String()),
		zap.String("format", lc.config.Format),
		zap.String("output", lc.config.Output),
	)
	SetGlobalLogger(lc)
	return nil
}

func (lc *LoggerComponent) Stop(ctx context.Context) error {
	if lc.zapLogger != nil {
		_ = lc.zapLogger.Sync()
	}
	return lc.BaseComponent.Stop(ctx)
}

func (lc *LoggerComponent) HealthCheck() error {
	if err := lc.BaseComponent.HealthCheck(); err != nil {
		return err
	}
	if lc.zapLogger == nil {
		return fmt.Errorf("zap logger is not initialized")
	}
	return nil
}

func (lc *LoggerComponent) buildEncoder() zapcore.Encoder {
	ec := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if lc.config.Format == "console" {
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

func (lc *LoggerComponent) buildWriteSyncer() (zapcore.WriteSyncer, error) {
	switch strings.ToLower(lc.config.Output) {
	case "stdout", "":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	case "file":
		if lc.config.FileConfig == nil {
			return nil, fmt.Errorf("file config is required when output is 'file'")
		}
		return openLogSink(lc.config.FileConfig.Dir, lc.config.FileConfig.Filename, lc.config.RotateConfig)
	default:
		dir, file := filepath.Split(lc.config.Output)
		return openLogSink(dir, strings.TrimSuffix(file, ".log"), lc.config.RotateConfig)
	}
}

// openLogSink 按配置选择: 时间切分 / lumberjack 按大小 / 普通追加
func openLogSink(dir, base string, rc *RotateConfig) (zapcore.WriteSyncer, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if rc != nil && rc.Enabled && rc.RotateInterval > 0 {
		w, err := newIntervalRotatingWriter(dir, base, rc)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	path := filepath.Join(dir, base+".log")
	if rc != nil && rc.Enabled {
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:  path,
			MaxSize:   rc.MaxSizeMB,
			MaxAge:    int(rc.MaxAge.Hours() / 24),
			Compress:  true,
			LocalTime: true,
		}), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return zapcore.AddSync(f), nil
}

func (lc *LoggerComponent) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	lc.emit(ctx, zapcore.DebugLevel, msg, fields)
}
func (lc *LoggerComponent) Info(ctx context.Context, msg string, fields ...zap.Field) {
	lc.emit(ctx, zapcore.InfoLevel, msg, fields)
}
func (lc *LoggerComponent) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	lc.emit(ctx, zapcore.WarnLevel, msg, fields)
}
func (lc *LoggerComponent) Error(ctx context.Context, msg string, fields ...zap.Field) {
	lc.emit(ctx, zapcore.ErrorLevel, msg, fields)
}
func (lc *LoggerComponent) Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	lc.emit(ctx, zapcore.FatalLevel, msg, fields)
}

func (lc *LoggerComponent) With(fields ...zap.Field) Logger {
	return &LoggerComponent{
		BaseComponent: lc.BaseComponent,
		config:        lc.config,
		zapLogger:     lc.zapLogger.With(fields...),
	}
}

func (lc *LoggerComponent) Sync() error {
	if lc.zapLogger == nil {
		return nil
	}
	return lc.zapLogger.Sync()
}

// emit 只使用已有的 OTel trace id, 不生成新的
func (lc *LoggerComponent) emit(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	if lc.zapLogger == nil {
		return
	}
	if ctx != nil && !hasField(fields, consts.KEY_TraceID) {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			fields = append([]zap.Field{zap.String(consts.KEY_TraceID, sc.TraceID().String())}, fields...)
		}
	}
	if ce := lc.zapLogger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func hasField(fields []zap.Field, key string) bool {
	for _, f := range fields {
		if f.Key == key {
			return true
		}
	}
	return false
}
