package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cuemby/pcsd/pkg/log"
)

// maxLimiters bounds the per-client table
const maxLimiters = 10000

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// loginLimiter throttles password attempts per client address
type loginLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	max      int
	now      func() time.Time
	limiters map[string]*clientLimiter
}

func newLoginLimiter(limit rate.Limit, burst int) *loginLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &loginLimiter{
		limit:    limit,
		burst:    burst,
		max:      maxLimiters,
		now:      time.Now,
		limiters: make(map[string]*clientLimiter),
	}
}

// Allow reports whether client may try another password now
func (l *loginLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.limiters[client]
	if !ok {
		if len(l.limiters) >= l.max {
			l.evict(now)
		}
		entry = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[client] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// evict drops clients whose bucket has refilled, which forgets nothing. When
// every client is still throttled the least recently seen one goes.
func (l *loginLimiter) evict(now time.Time) {
	var (
		oldest     string
		oldestSeen time.Time
	)
	for client, entry := range l.limiters {
		if entry.limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, client)
			continue
		}
		if oldest == "" || entry.lastSeen.Before(oldestSeen) {
			oldest, oldestSeen = client, entry.lastSeen
		}
	}
	if len(l.limiters) >= l.max && oldest != "" {
		delete(l.limiters, oldest)
	}
}

// middleware rejects password requests over the limit with 429. Requests for
// other remote commands pass through untouched.
func (l *loginLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if cmd := c.Param("command"); cmd != "" && cmd != string(CommandAuth) {
			c.Next()
			return
		}

		client := c.ClientIP()
		if !l.Allow(client) {
			logger := log.WithComponent("api")
			logger.Warn().Str("client", client).Msg("login rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "true",
				"message": "too many login attempts",
			})
			return
		}
		c.Next()
	}
}
