package utils

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger is the logging facade shared by handlers and middleware
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	Slog() *slog.Logger
}

type slogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{l: l}
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }
func (s *slogLogger) With(args ...any) Logger       { return &slogLogger{l: s.l.With(args...)} }
func (s *slogLogger) Slog() *slog.Logger            { return s.l }

type loggerCtxKey struct{}

const ginLoggerKey = "logger"

// WithLogger stores logger in ctx
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the request scoped logger, or fallback when none was attached
func FromContext(ctx context.Context, fallback Logger) Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(Logger); ok {
		return l
	}
	return fallback
}

// GetLogger returns the logger attached by ContextLogger
func GetLogger(c *gin.Context, fallback Logger) Logger {
	if v, ok := c.Get(ginLoggerKey); ok {
		if l, ok := v.(Logger); ok {
			return l
		}
	}
	return fallback
}

// ContextLogger attaches a logger carrying request_id to the gin and request contexts
func ContextLogger(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLogger := logger.With("request_id", c.GetString("request_id"))
		c.Set(ginLoggerKey, reqLogger)
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), reqLogger))
		c.Next()
	}
}

// LoggerMiddleware writes one access log line per request
func LoggerMiddleware(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString("request_id"),
		}
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			logger.Error("HTTP request", args...)
		case status >= 400:
			logger.Warn("HTTP request", args...)
		default:
			logger.Info("HTTP request", args...)
		}
	}
}
