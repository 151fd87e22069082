package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger receives per-phase events from the scan and copy engine.
// Implementations must be safe for concurrent use.
type Logger interface {
	PhaseStart(phase string, totalItems int)
	ItemProcessed(phase string, item string, action string)
	PhaseComplete(phase string, processedItems int)
	Error(phase string, item string, err error)
}

// ZapLogger writes structured events through zap
type ZapLogger struct {
	log *zap.Logger
}

// NewZapLogger wraps an existing zap logger
func NewZapLogger(log *zap.Logger) *ZapLogger {
	return &ZapLogger{log: log}
}

// NewConsoleLogger creates a human readable zap logger writing to w
func NewConsoleLogger(w io.Writer, level zapcore.Level) *ZapLogger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	)
	return &ZapLogger{log: zap.New(core)}
}

func (l *ZapLogger) PhaseStart(phase string, totalItems int) {
	l.log.Info("phase started", zap.String("phase", phase), zap.Int("items", totalItems))
}

func (l *ZapLogger) ItemProcessed(phase string, item string, action string) {
	l.log.Debug(action, zap.String("phase", phase), zap.String("path", item))
}

func (l *ZapLogger) PhaseComplete(phase string, processedItems int) {
	l.log.Info("phase complete", zap.String("phase", phase), zap.Int("processed", processedItems))
}

func (l *ZapLogger) Error(phase string, item string, err error) {
	l.log.Error("operation failed", zap.String("phase", phase), zap.String("path", item), zap.Error(err))
}

// Sync flushes buffered log entries
func (l *ZapLogger) Sync() error {
	return l.log.Sync()
}

type NullLogger struct{}

func (l *NullLogger) PhaseStart(phase string, totalItems int) {}

func (l *NullLogger) ItemProcessed(phase string, item string, action string) {}

func (l *NullLogger) PhaseComplete(phase string, processedItems int) {}

func (l *NullLogger) Error(phase string, item string, err error) {}

// QuietLogger prints only actions that changed something, and errors
type QuietLogger struct {
	Out    io.Writer
	ErrOut io.Writer
}

func (l *QuietLogger) PhaseStart(phase string, totalItems int) {}

func (l *QuietLogger) ItemProcessed(phase string, item string, action string) {
	if action != "skip" {
		fmt.Fprintf(writerOr(l.Out, os.Stdout), "%s: %s\n", action, item)
	}
}

func (l *QuietLogger) PhaseComplete(phase string, processedItems int) {}

func (l *QuietLogger) Error(phase string, item string, err error) {
	fmt.Fprintf(writerOr(l.ErrOut, os.Stderr), "[%s] %s: %v\n", phase, item, err)
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}
