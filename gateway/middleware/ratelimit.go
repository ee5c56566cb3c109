package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dscengine/observability"
)

type RateLimit struct {
	RequestsPerMinute float64
	RatePerSecond     float64
	Burst             int
}

func (l RateLimit) perSecond() float64 {
	if l.RatePerSecond > 0 {
		return l.RatePerSecond
	}
	return l.RequestsPerMinute / 60.0
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies per-client token buckets per named policy. Idle buckets
// are pruned on access.
type RateLimiter struct {
	logger    *slog.Logger
	limits    map[string]RateLimit
	mu        sync.Mutex
	visitors  map[string]*rateEntry
	idleTTL   time.Duration
	lastPrune time.Time
	clockNow  func() time.Time
}

func NewRateLimiter(limits map[string]RateLimit, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		logger:   logger,
		limits:   limits,
		visitors: make(map[string]*rateEntry),
		idleTTL:  5 * time.Minute,
		clockNow: time.Now,
	}
}

func (r *RateLimiter) Middleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			limit, ok := r.limits[key]
			if !ok {
				next.ServeHTTP(w, req)
				return
			}
			identifier := clientID(req)
			limiter := r.obtainLimiter(key+"|"+identifier, limit)
			if !limiter.AllowN(r.clockNow(), 1) {
				observability.Gateway().RecordThrottle(key, "rate_limit")
				r.logger.Debug("gateway request throttled", "route", key, "client", identifier)
				writeError(w, http.StatusTooManyRequests, "rate_limited", http.StatusText(http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func (r *RateLimiter) obtainLimiter(id string, cfg RateLimit) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clockNow()
	r.pruneLocked(now)
	entry, ok := r.visitors[id]
	if ok {
		entry.lastSeen = now
		return entry.limiter
	}
	perSecond := cfg.perSecond()
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	r.visitors[id] = &rateEntry{limiter: limiter, lastSeen: now}
	return limiter
}

func (r *RateLimiter) pruneLocked(now time.Time) {
	if now.Sub(r.lastPrune) < r.idleTTL {
		return
	}
	r.lastPrune = now
	for id, entry := range r.visitors {
		if now.Sub(entry.lastSeen) >= r.idleTTL {
			delete(r.visitors, id)
		}
	}
}

func clientID(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return "key:" + key
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		first, _, _ := strings.Cut(ip, ",")
		first = strings.TrimSpace(first)
		if parsed := net.ParseIP(first); parsed != nil {
			return parsed.String()
		}
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
