package middleware

import (
	"net/http"
	"time"

	"github.com/whitechapel007/chat-app-pern/internal/logger"
)

// RequestLog логирует каждый HTTP-запрос: method, path, статус и время выполнения.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrap, ok := w.(*responseWriter)
		if !ok {
			wrap = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}
		next.ServeHTTP(wrap, r)
		logger.Debugf("http %s %s status=%d user=%s duration=%s",
			r.Method, r.URL.Path, wrap.status, GetUserID(r.Context()), time.Since(start))
	})
}
