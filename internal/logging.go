package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const LogFileName = "skypanel.jsonl"

type LevelSet map[zapcore.Level]bool

func (ls LevelSet) Enabled(l zapcore.Level) bool {
	return ls[l]
}

// StdoutLevels returns the levels printed to stdout for the configured minimum.
// Warnings and above always go to stderr instead.
func StdoutLevels(level string) (LevelSet, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	levels := make(LevelSet)
	for _, l := range []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel} {
		if l >= lvl {
			levels[l] = true
		}
	}
	return levels, nil
}

type Logger struct {
	*zap.Logger
	file *os.File
}

// Close flushes buffered entries and closes the log file, if any.
func (l *Logger) Close() {
	// best-effort; ignore errors
	_ = l.Sync()
	if l.file != nil {
		_ = l.file.Close()
	}
}

// NewLogger tees a console core (info/debug → stdout from consoleLevel, warn+ →
// stderr) with a JSONL file core under logDir at fileLevel. An empty logDir keeps
// logging on the console only.
func NewLogger(consoleLevel, fileLevel, logDir string) (*Logger, error) {
	levels, err := StdoutLevels(consoleLevel)
	if err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:       "", // Disable timestamp
		LevelKey:      "level",
		CallerKey:     "", // Disable caller
		FunctionKey:   "", // Disable function name
		StacktraceKey: "", // Disable stacktrace
		MessageKey:    "msg",
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	stdoutWriter := zapcore.Lock(os.Stdout)
	stderrWriter := zapcore.Lock(os.Stderr)

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, stdoutWriter, zap.LevelEnablerFunc(levels.Enabled)),
		zapcore.NewCore(consoleEncoder, stderrWriter, zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapcore.WarnLevel
		})),
	}

	var file *os.File
	if logDir != "" {
		fileCore, f, err := newFileCore(logDir, fileLevel)
		if err != nil {
			return nil, err
		}
		cores = append(cores, fileCore)
		file = f
	}

	return &Logger{Logger: zap.New(zapcore.NewTee(cores...)), file: file}, nil
}

func newFileCore(logDir, level string) (zapcore.Core, *os.File, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(logDir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), lvl), f, nil
}
