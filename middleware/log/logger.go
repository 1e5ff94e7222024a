package logger

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Gopher0727/MindBridge/config"
)

// Logger is the zap logger shared by the MindBridge services. It carries an
// optional file handle so Close can release it.
type Logger struct {
	*zap.Logger
	file *os.File
}

// NewLogger builds a logger from the logging section of the config.
// Unknown levels fall back to info; format "json" selects the JSON encoder
// and anything else the console encoder; output "file" appends to FilePath.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	encoder := zapcore.NewConsoleEncoder(encoderConfig)
	if strings.EqualFold(cfg.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var (
		sink zapcore.WriteSyncer
		file *os.File
	)
	switch cfg.Output {
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("logging.file_path is required for file output")
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		sink = zapcore.AddSync(f)
	case "stderr":
		sink = zapcore.Lock(os.Stderr)
	default:
		sink = zapcore.Lock(os.Stdout)
	}

	core := zapcore.NewCore(encoder, sink, parseLevel(cfg.Level))
	return &Logger{
		Logger: zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
		file:   file,
	}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Wrap adapts an existing zap logger.
func Wrap(l *zap.Logger) *Logger {
	return &Logger{Logger: l}
}

func parseLevel(level string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger.Named(component)}
}

// WithFields returns a child logger carrying the given fields.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// WithContext attaches the trace and user IDs stored in ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var fields []zap.Field
	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if userID := GetUserID(ctx); userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	if len(fields) == 0 {
		return l
	}
	return l.WithFields(fields...)
}

func (l *Logger) DebugContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Debug(msg, fields...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Info(msg, fields...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Warn(msg, fields...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Error(msg, fields...)
}

// Close flushes buffered entries and releases the log file.
func (l *Logger) Close() error {
	// Sync on stdout returns EINVAL on some platforms; only file sinks matter here.
	syncErr := l.Logger.Sync()
	if l.file == nil {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	return syncErr
}
