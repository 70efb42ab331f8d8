package ratelimit

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	xhttp "OVIP/pkg/http"
)

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter keeps one token bucket per key.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*entry
	rps   rate.Limit
	burst int
	idle  time.Duration
}

// New creates a limiter allowing rps sustained with the given burst per key.
// A non-positive rps disables limiting.
func New(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	lim := rate.Limit(rps)
	if rps <= 0 {
		lim = rate.Inf
	}
	return &Limiter{m: make(map[string]*entry), rps: lim, burst: burst, idle: 10 * time.Minute}
}

// Allow reports whether one request for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.m[key] = e
	}
	e.seen = now
	if len(l.m) > 1024 {
		l.sweep(now)
	}
	l.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

// sweep drops keys idle longer than l.idle. Caller holds mu.
func (l *Limiter) sweep(now time.Time) {
	for k, e := range l.m {
		if now.Sub(e.seen) > l.idle {
			delete(l.m, k)
		}
	}
}

// Middleware limits requests per client IP and answers 429 when exhausted.
func (l *Limiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded").WithRetryAfter(l.retryAfter()))
			}
			return next(c)
		}
	}
}

// retryAfter is the time one token takes to refill.
func (l *Limiter) retryAfter() time.Duration {
	if l.rps == rate.Inf || l.rps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(l.rps))
}
