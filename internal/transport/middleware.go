package transport

import (
	"container/list"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/anime-shed/vision-guard-go/internal/errors"
	"github.com/anime-shed/vision-guard-go/internal/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	requestIDHeader = "X-Request-ID"

	// limiterCapacity bounds the per-client limiter table
	limiterCapacity = 10000
)

// requestID tags every request with an id, reusing the caller's X-Request-ID when present
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), id))
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.FromContext(c.Request.Context()).WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"ip":         c.ClientIP(),
		}).Info("Request handled")
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader, "X-Total-Objects"},
		MaxAge:        12 * time.Hour,
	}

	allowAll := len(origins) == 0
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

type clientLimiter struct {
	ip      string
	limiter *rate.Limiter
}

// clientTable holds one token bucket per client. At capacity the least recently
// seen client is evicted, so a returning evicted client starts with a full bucket.
type clientTable struct {
	mu       sync.Mutex
	capacity int
	burst    int
	every    rate.Limit
	order    *list.List
	clients  map[string]*list.Element
}

func newClientTable(perMinute, capacity int) *clientTable {
	return &clientTable{
		capacity: capacity,
		burst:    perMinute,
		every:    rate.Every(time.Minute / time.Duration(perMinute)),
		order:    list.New(),
		clients:  make(map[string]*list.Element),
	}
}

func (t *clientTable) allow(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.clients[ip]; ok {
		t.order.MoveToFront(el)
		return el.Value.(*clientLimiter).limiter.Allow()
	}

	if t.order.Len() >= t.capacity {
		if oldest := t.order.Back(); oldest != nil {
			t.order.Remove(oldest)
			delete(t.clients, oldest.Value.(*clientLimiter).ip)
		}
	}
	cl := &clientLimiter{ip: ip, limiter: rate.NewLimiter(t.every, t.burst)}
	t.clients[ip] = t.order.PushFront(cl)
	return cl.limiter.Allow()
}

func (t *clientTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}

// rateLimiter applies a token bucket per client IP. perMinute <= 0 disables it.
func rateLimiter(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return limitClients(newClientTable(perMinute, limiterCapacity))
}

func limitClients(table *clientTable) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !table.allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			respondError(c, apperrors.NewRateLimitError("Rate limit exceeded"))
			return
		}
		c.Next()
	}
}

// requestSizeLimiter refuses declared oversize bodies up front and caps the rest while reading
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			respondError(c, tooLarge(maxBytes))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			var appErr *apperrors.AppError
			switch {
			case errors.As(err, &appErr):
			case errors.Is(err, context.DeadlineExceeded):
				err = apperrors.NewTimeoutError("Request timed out", err)
			default:
				err = apperrors.NewInternalError("Request processing failed", err)
			}
			respondError(c, err)
		}
	}
}
