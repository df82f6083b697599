package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/biofugitive/fieldcache/internal/activity"
	"github.com/biofugitive/fieldcache/internal/recent"
	"github.com/biofugitive/fieldcache/internal/session"
)

const (
	RequestIDHeader = "X-Request-ID"

	ctxKeySession    = "fieldcache.session"
	ctxKeyActivities = "fieldcache.activities"
	ctxKeyRecent     = "fieldcache.recent"
	ctxKeyRequestID  = "fieldcache.request_id"
)

// Caches are the device caches served over HTTP.
type Caches struct {
	Session    *session.Cache
	Activities *activity.Log
	Recent     *recent.Persons
}

// Inject makes the caches available to every handler below it.
func Inject(caches Caches) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxKeySession, caches.Session)
		c.Set(ctxKeyActivities, caches.Activities)
		c.Set(ctxKeyRecent, caches.Recent)
		c.Next()
	}
}

// MustSession returns the injected session cache. It panics when Inject is
// not installed.
func MustSession(c *gin.Context) *session.Cache {
	return c.MustGet(ctxKeySession).(*session.Cache)
}

// MustActivities returns the injected activity log. It panics when Inject is
// not installed.
func MustActivities(c *gin.Context) *activity.Log {
	return c.MustGet(ctxKeyActivities).(*activity.Log)
}

// MustRecent returns the injected recents cache. It panics when Inject is
// not installed.
func MustRecent(c *gin.Context) *recent.Persons {
	return c.MustGet(ctxKeyRecent).(*recent.Persons)
}

// RequestID echoes an incoming X-Request-ID or mints a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Logger writes one structured line per request.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetString(ctxKeyRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= 500 {
			logger.Error("request", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}

// CORS allows the management clients to call from any origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, "+RequestIDHeader)
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
