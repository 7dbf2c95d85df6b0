package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// LoggerOptions configures a structured logger.
type LoggerOptions struct {
	Level           string
	Output          io.Writer
	Prefix          string
	ReportTimestamp bool
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = log.NewWithOptions(os.Stderr, log.Options{Level: log.InfoLevel})
)

// InitLogger creates a logger from options. Output defaults to stderr.
func InitLogger(opts LoggerOptions) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return log.NewWithOptions(out, log.Options{
		Level:           parseLevel(opts.Level),
		Prefix:          opts.Prefix,
		ReportTimestamp: opts.ReportTimestamp,
		TimeFormat:      time.Kitchen,
	})
}

// InitDefaultLogger builds the stderr logger used by the CLI.
// METERELF_LOG_LEVEL overrides the info default.
func InitDefaultLogger() *log.Logger {
	level := "info"
	if env := os.Getenv("METERELF_LOG_LEVEL"); env != "" {
		level = env
	}
	return InitLogger(LoggerOptions{Level: level})
}

// InitRunLogger creates a logger writing to .meterelf/logs/<name>.log under
// projectDir. The caller owns the returned file.
func InitRunLogger(projectDir, name string) (*log.Logger, *os.File, error) {
	dir := filepath.Join(projectDir, ".meterelf", "logs")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, nil, fmt.Errorf("creating log dir: %w", err)
	}
	stamp := time.Now().UTC().Format("20060102T150405Z")
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", stamp, name))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	logger := InitLogger(LoggerOptions{
		Level:           "debug",
		Output:          f,
		Prefix:          name,
		ReportTimestamp: true,
	})
	return logger, f, nil
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// SetDefaultLogger replaces the package default logger and log's default.
func SetDefaultLogger(l *log.Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	log.SetDefault(l)
}

// GetDefaultLogger returns the package default logger.
func GetDefaultLogger() *log.Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

func Debug(msg any, keyvals ...any) { GetDefaultLogger().Debug(msg, keyvals...) }
func Info(msg any, keyvals ...any)  { GetDefaultLogger().Info(msg, keyvals...) }
func Warn(msg any, keyvals ...any)  { GetDefaultLogger().Warn(msg, keyvals...) }
func Error(msg any, keyvals ...any) { GetDefaultLogger().Error(msg, keyvals...) }

// With returns the default logger with extra key/values.
func With(keyvals ...any) *log.Logger { return GetDefaultLogger().With(keyvals...) }

// WithPrefix returns the default logger with a prefix.
func WithPrefix(prefix string) *log.Logger { return GetDefaultLogger().WithPrefix(prefix) }
