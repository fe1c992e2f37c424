// Package logger предоставляет логирование с префиксом сервиса и асинхронной записью,
// чтобы не блокировать основное приложение. Записи уходят в log/slog одним воркером.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const asyncBufferSize = 8192

type record struct {
	level slog.Level
	msg   string
	attrs []slog.Attr
}

var (
	mu       sync.RWMutex
	prefix   string
	logLevel = new(slog.LevelVar)
	out      *slog.Logger
	ch       chan record
	once     sync.Once
)

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func initWorker() {
	logLevel.Set(parseLevel(os.Getenv("LOG_LEVEL")))
	out = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	ch = make(chan record, asyncBufferSize)
	go func() {
		for r := range ch {
			out.LogAttrs(context.Background(), r.level, r.msg, r.attrs...)
		}
	}()
}

func enqueue(level slog.Level, msg string, attrs ...slog.Attr) {
	once.Do(initWorker)
	if !out.Enabled(context.Background(), level) {
		return
	}
	mu.RLock()
	p := prefix
	mu.RUnlock()
	if p != "" {
		attrs = append(attrs, slog.String("service", p))
	}
	select {
	case ch <- record{level: level, msg: msg, attrs: attrs}:
	default:
		// Буфер полон — не блокируем, теряем лог
	}
}

// SetPrefix задаёт имя сервиса для всех последующих логов (например "api").
func SetPrefix(p string) {
	mu.Lock()
	prefix = p
	mu.Unlock()
}

// SetLevel переопределяет уровень (значение из конфига приоритетнее LOG_LEVEL).
func SetLevel(level string) {
	once.Do(initWorker)
	logLevel.Set(parseLevel(level))
}

func Info(v ...any) {
	enqueue(slog.LevelInfo, fmt.Sprint(v...))
}

func Infof(format string, v ...any) {
	enqueue(slog.LevelInfo, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) {
	enqueue(slog.LevelDebug, fmt.Sprintf(format, v...))
}

func Error(v ...any) {
	enqueue(slog.LevelError, fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	enqueue(slog.LevelError, fmt.Sprintf(format, v...))
}

// LogDuration логирует имя функции и время выполнения.
// На уровне info пишутся только вызовы дольше 100ms, на debug — все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	level := slog.LevelDebug
	if elapsed >= 100*time.Millisecond {
		level = slog.LevelInfo
	}
	enqueue(level, "duration", slog.String("fn", fn), slog.Int64("duration_ms", elapsed.Milliseconds()))
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("conv.Create", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
