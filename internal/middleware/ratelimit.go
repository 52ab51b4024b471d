package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter hands out a token bucket per key (client IP or user id). A key may
// burst up to perWindow requests and then refills at perWindow per window.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	every    rate.Limit
	burst    int
	idle     time.Duration
}

func NewLimiter(perWindow int, window time.Duration) *Limiter {
	if perWindow < 1 {
		perWindow = 1
	}
	l := &Limiter{
		visitors: make(map[string]*visitor),
		every:    rate.Every(window / time.Duration(perWindow)),
		burst:    perWindow,
		idle:     window,
	}
	go l.sweep()
	return l
}

// Reserve takes a token for key. When none is available it returns false and
// how long until the next one.
func (l *Limiter) Reserve(key string) (bool, time.Duration) {
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(l.every, l.burst)}
		l.visitors[key] = v
	}
	v.seen = time.Now()
	l.mu.Unlock()

	r := v.lim.Reserve()
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return false, d
	}
	return true, 0
}

// sweep drops buckets that have been idle long enough to be full again.
func (l *Limiter) sweep() {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()
	for range tick.C {
		cutoff := time.Now().Add(-l.idle)
		l.mu.Lock()
		for k, v := range l.visitors {
			if v.seen.Before(cutoff) {
				delete(l.visitors, k)
			}
		}
		l.mu.Unlock()
	}
}

// RateLimit limits by client IP.
func RateLimit(l *Limiter) gin.HandlerFunc {
	return rateLimit(l, func(c *gin.Context) string { return "ip:" + c.ClientIP() })
}

// RateLimitUser limits by authenticated user, falling back to client IP.
func RateLimitUser(l *Limiter) gin.HandlerFunc {
	return rateLimit(l, func(c *gin.Context) string {
		if id := GetUserID(c); id != 0 {
			return "user:" + strconv.FormatUint(uint64(id), 10)
		}
		return "ip:" + c.ClientIP()
	})
}

func rateLimit(l *Limiter, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ok, wait := l.Reserve(key(c)); !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			abort(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
