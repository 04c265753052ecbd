package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// InitLogger writes JSON logs to stdout and, when file is set, to a rotated file.
func InitLogger(file string, maxSizeMB, maxBackups, maxAgeDays int, compress bool, level string) {
	var out io.Writer = os.Stdout
	if file != "" {
		if dir := filepath.Dir(file); dir != "." && dir != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   compress,
		}
		out = zerolog.MultiLevelWriter(os.Stdout, rotator)
	}

	mu.Lock()
	logger = zerolog.New(out).With().Timestamp().Logger().Level(parseLevel(level))
	mu.Unlock()
}

// SetLogLevel changes the minimum level. Unknown levels fall back to info.
func SetLogLevel(level string) {
	mu.Lock()
	logger = logger.Level(parseLevel(level))
	mu.Unlock()
}

// SetLoggerForTest replaces the package logger.
func SetLoggerForTest(l zerolog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func Info(msg string, kv ...any)  { write(zerolog.InfoLevel, msg, kv) }
func Warn(msg string, kv ...any)  { write(zerolog.WarnLevel, msg, kv) }
func Error(msg string, kv ...any) { write(zerolog.ErrorLevel, msg, kv) }
func Debug(msg string, kv ...any) { write(zerolog.DebugLevel, msg, kv) }

// write attaches kv pairs as fields. A trailing key without value is dropped.
func write(level zerolog.Level, msg string, kv []any) {
	mu.RLock()
	l := logger
	mu.RUnlock()

	ev := l.WithLevel(level)
	if ev == nil {
		return
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}
