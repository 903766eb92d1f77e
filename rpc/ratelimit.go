package rpc

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ecorelease/observability"
)

const visitorTTL = 5 * time.Minute

type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles JSON-RPC calls per client address. A zero rate
// disables it.
type RateLimiter struct {
	limit    RateLimit
	metrics  *observability.RPCMetrics
	mu       sync.Mutex
	visitors map[string]*rateEntry
	lastScan time.Time
	clockNow func() time.Time
}

func NewRateLimiter(limit RateLimit, metrics *observability.RPCMetrics) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		metrics:  metrics,
		visitors: make(map[string]*rateEntry),
		clockNow: time.Now,
	}
}

func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.limit.RequestsPerMinute <= 0 {
			next.ServeHTTP(w, req)
			return
		}
		if !r.Allow(clientID(req)) {
			r.metrics.RecordThrottle("rate_limit")
			writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// Allow reports whether the client identified by id may make another call.
func (r *RateLimiter) Allow(id string) bool {
	now := r.clockNow()
	return r.obtainLimiter(id, now).AllowN(now, 1)
}

func (r *RateLimiter) obtainLimiter(id string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.lastScan) > visitorTTL {
		for key, entry := range r.visitors {
			if now.Sub(entry.lastSeen) > visitorTTL {
				delete(r.visitors, key)
			}
		}
		r.lastScan = now
	}
	entry, ok := r.visitors[id]
	if ok {
		entry.lastSeen = now
		return entry.limiter
	}
	perSecond := r.limit.RequestsPerMinute / 60.0
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := r.limit.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	r.visitors[id] = &rateEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// clientID relies on chi's RealIP middleware having rewritten RemoteAddr.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
