package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiters idle longer than this are dropped once the table grows past
// maxTrackedIPs.
const (
	limiterIdle   = 10 * time.Minute
	maxTrackedIPs = 1024
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

func newIPLimiter(r rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    burst,
		now:      time.Now,
	}
}

func (ipl *ipLimiter) get(ip string) *rate.Limiter {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	now := ipl.now()
	if len(ipl.visitors) >= maxTrackedIPs {
		for k, v := range ipl.visitors {
			if now.Sub(v.lastSeen) > limiterIdle {
				delete(ipl.visitors, k)
			}
		}
	}

	v, ok := ipl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(ipl.rate, ipl.burst)}
		ipl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// RateLimit throttles requests per client IP. Place it after chi's RealIP
// middleware so proxied clients are told apart.
func RateLimit(r rate.Limit, burst int) func(http.Handler) http.Handler {
	il := newIPLimiter(r, burst)
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !il.get(clientIP(r)).Allow() {
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}

// PerMinute converts a per-minute allowance into a limiter rate.
func PerMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
