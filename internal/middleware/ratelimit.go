package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	rateLimitWindow  = time.Minute
	rateLimitMaxIP   = 200
	rateLimitMaxUser = 100
)

type rateLimiter struct {
	mu     sync.Mutex
	times  map[string][]time.Time
	max    int
	window time.Duration
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{times: make(map[string][]time.Time), max: max, window: window}
}

func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-r.window)
	slice := r.times[key]
	i := 0
	for _, t := range slice {
		if t.After(cutoff) {
			slice[i] = t
			i++
		}
	}
	slice = slice[:i]
	if len(slice) >= r.max {
		r.times[key] = slice
		return false
	}
	r.times[key] = append(slice, now)
	return true
}

// ClientIP — адрес клиента: X-Real-Ip, первый адрес X-Forwarded-For, иначе RemoteAddr без порта.
func ClientIP(r *http.Request) string {
	if x := strings.TrimSpace(r.Header.Get("X-Real-Ip")); x != "" {
		return x
	}
	if x := r.Header.Get("X-Forwarded-For"); x != "" {
		first, _, _ := strings.Cut(x, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimiter ограничивает запросы к /api/* по IP и по пользователю (если он есть в контексте).
type RateLimiter struct {
	byIP   *rateLimiter
	byUser *rateLimiter
}

func NewRateLimiter(maxPerIP, maxPerUser int, window time.Duration) *RateLimiter {
	if maxPerIP <= 0 {
		maxPerIP = rateLimitMaxIP
	}
	if maxPerUser <= 0 {
		maxPerUser = rateLimitMaxUser
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{byIP: newRateLimiter(maxPerIP, window), byUser: newRateLimiter(maxPerUser, window)}
}

func tooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
}

// ByIP — лимит по адресу клиента, ставится до аутентификации.
func (l *RateLimiter) ByIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.byIP.allow(ClientIP(r)) {
			tooManyRequests(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ByUser — лимит по пользователю, ставится после Auth.
func (l *RateLimiter) ByUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := GetUserID(r.Context()); userID != "" && !l.byUser.allow("u:"+userID) {
			tooManyRequests(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
