package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/yungbote/kierachat-backend/internal/http/response"
	"github.com/yungbote/kierachat-backend/internal/pkg/ctxutil"
)

var errRateLimited = errors.New("too many messages, slow down")

// SendLimiter keeps one token bucket per identity. Idle buckets expire from
// the cache so anonymous churn does not grow memory.
type SendLimiter struct {
	perMinute int
	burst     int
	mu        sync.Mutex
	limiters  *gocache.Cache
}

func NewSendLimiter(perMinute int, burst int) *SendLimiter {
	if perMinute <= 0 {
		perMinute = 20
	}
	if burst <= 0 {
		burst = 5
	}
	return &SendLimiter{
		perMinute: perMinute,
		burst:     burst,
		limiters:  gocache.New(10*time.Minute, 5*time.Minute),
	}
}

func (l *SendLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.limiters.Get(key); ok {
		l.limiters.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.burst)
	l.limiters.SetDefault(key, lim)
	return lim
}

func (l *SendLimiter) Allow(key string) bool {
	return l.limiter(key).Allow()
}

// Middleware keys on the identity owner key, falling back to the client IP.
func (l *SendLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ctxutil.GetIdentity(c.Request.Context()).OwnerKey()
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !l.Allow(key) {
			c.Header("Retry-After", strconv.Itoa(int((time.Minute/time.Duration(l.perMinute)).Seconds())+1))
			response.AbortError(c, http.StatusTooManyRequests, "rate_limited", errRateLimited)
			return
		}
		c.Next()
	}
}
