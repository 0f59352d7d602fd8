package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/7p-education/platform/internal/ratelimit"
	"github.com/7p-education/platform/internal/reporting"
	"github.com/7p-education/platform/internal/utils"
)

// SetupMiddleware sets up common middleware for the Gin router
func SetupMiddleware(router *gin.Engine, logger utils.Logger, reporter reporting.Reporter) {
	router.Use(RequestIDMiddleware())

	router.Use(RecoveryMiddleware(logger, reporter))

	// Context logger middleware (adds logger with request_id to context)
	router.Use(utils.ContextLogger(logger))

	router.Use(utils.LoggerMiddleware(logger))

	router.Use(SecurityMiddleware())
}

// CORSSettings builds the CORS wrapper placed around the gin engine.
// Only the configured frontend origin may send credentials.
func CORSSettings(frontendURL string, debug bool) *cors.Cors {
	origins := []string{"http://localhost:3000"}
	if frontendURL != "" {
		origins = append(origins, frontendURL)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID", "Stripe-Signature"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           43200,
		Debug:            debug,
	})
}

// SecurityMiddleware adds security headers
func SecurityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'self'")
		c.Next()
	}
}

// RequestIDMiddleware generates a unique request ID for each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// RecoveryMiddleware turns panics into a 500 envelope and reports them
func RecoveryMiddleware(logger utils.Logger, reporter reporting.Reporter) gin.HandlerFunc {
	if reporter == nil {
		reporter = reporting.NopReporter{}
	}
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		err := fmt.Errorf("panic: %v", recovered)
		utils.GetLogger(c, logger).Error("Recovered from panic", "error", err, "path", c.Request.URL.Path)
		reporter.Error(err, c.Request, map[string]interface{}{"request_id": c.GetString("request_id")})
		respondError(c, http.StatusInternalServerError, CodeInternal, "Beklenmeyen bir hata oluştu", nil)
	})
}

// RateLimiter applies fixed-window limits keyed by client IP and route
type RateLimiter struct {
	limiter ratelimit.Limiter
	window  time.Duration
	enabled bool
	logger  utils.Logger
	now     func() time.Time
}

func NewRateLimiter(limiter ratelimit.Limiter, enabled bool, logger utils.Logger) *RateLimiter {
	return &RateLimiter{
		limiter: limiter,
		window:  time.Minute,
		enabled: enabled && limiter != nil,
		logger:  logger,
		now:     time.Now,
	}
}

// Limit allows perWindow requests per client and route. scope separates
// the counters of route groups that share a path.
func (rl *RateLimiter) Limit(scope string, perWindow int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.enabled || perWindow <= 0 {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := scope + ":" + c.ClientIP() + ":" + route

		res, err := rl.limiter.Allow(c.Request.Context(), key, perWindow, rl.window)
		if err != nil {
			// Fail open
			utils.GetLogger(c, rl.logger).Warn("Rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retry := res.RetryAfter(rl.now())
			c.Header("Retry-After", strconv.Itoa(int(retry.Round(time.Second)/time.Second)))
			respondError(c, http.StatusTooManyRequests, CodeRateLimited,
				"Çok fazla istek gönderdiniz, lütfen daha sonra tekrar deneyin", nil)
			return
		}
		c.Next()
	}
}

// PaymentsGuard answers 501 on every payment route while payments are disabled
func PaymentsGuard(enabled func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled() {
			respondError(c, http.StatusNotImplemented, CodePaymentsDisabled, paymentsDisabledMessage, nil)
			return
		}
		c.Next()
	}
}
