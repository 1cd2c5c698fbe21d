// Package ratelimit limits mutating requests per client IP.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	applog "walletwise/internal/log"
)

// Observer is told about every refused request.
type Observer interface {
	RateLimited()
}

// Limiter counts requests per client in fixed windows.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window

	limit  int
	window time.Duration
	now    func() time.Time

	logger   *applog.Logger
	observer Observer
}

type window struct {
	start    time.Time
	requests int
}

// Config holds rate limiter configuration
type Config struct {
	Requests int
	Window   time.Duration
}

// DefaultConfig returns 30 requests per minute.
func DefaultConfig() Config {
	return Config{Requests: 30, Window: time.Minute}
}

// Option configures a Limiter.
type Option func(*Limiter)

func WithClock(now func() time.Time) Option { return func(l *Limiter) { l.now = now } }
func WithLogger(lg *applog.Logger) Option   { return func(l *Limiter) { l.logger = lg } }
func WithObserver(o Observer) Option        { return func(l *Limiter) { l.observer = o } }

func NewLimiter(cfg Config, opts ...Option) *Limiter {
	def := DefaultConfig()
	if cfg.Requests <= 0 {
		cfg.Requests = def.Requests
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	l := &Limiter{
		clients: make(map[string]*window),
		limit:   cfg.Requests,
		window:  cfg.Window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = applog.Default(applog.ComponentRateLimit)
	}
	l.logger = l.logger.WithComponent(applog.ComponentRateLimit)
	return l
}

// Allow reports whether another request from clientIP fits in its window.
func (l *Limiter) Allow(clientIP string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[clientIP]
	if !ok || now.Sub(w.start) >= l.window {
		l.clients[clientIP] = &window{start: now, requests: 1}
		return true
	}
	if w.requests >= l.limit {
		return false
	}
	w.requests++
	return true
}

// RetryAfter is how long clientIP must wait for its window to reset.
func (l *Limiter) RetryAfter(clientIP string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.clients[clientIP]
	if !ok {
		return 0
	}
	left := l.window - l.now().Sub(w.start)
	if left < 0 {
		return 0
	}
	return left
}

// CleanExpired drops clients whose window has ended.
func (l *Limiter) CleanExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for ip, w := range l.clients {
		if now.Sub(w.start) >= l.window {
			delete(l.clients, ip)
			removed++
		}
	}
	return removed
}

// ActiveClients returns the number of currently tracked clients
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Middleware limits POST requests. Reads pass through untouched.
func (l *Limiter) Middleware(extractIP func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			ip := extractIP(r)
			if l.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}

			l.logger.WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldClientIP, ip,
				applog.FieldPath, r.URL.Path)
			if l.observer != nil {
				l.observer.RateLimited()
			}
			secs := int(l.RetryAfter(ip).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			http.Error(w, "Muitas requisições. Tente novamente em instantes.", http.StatusTooManyRequests)
		})
	}
}
