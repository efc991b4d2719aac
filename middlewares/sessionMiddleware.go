package middlewares

import (
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SessionMiddleware attaches the per-request values every handler may need:
// correlation id, client ip and the desktop device id header.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)

		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		ctx = utils.SetClientIPInContext(ctx, c.ClientIP())
		if deviceId := c.GetHeader("x-device-id"); deviceId != "" {
			ctx = utils.SetDeviceIdInContext(ctx, deviceId)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AccessLogger writes one structured line per request, at error level when
// the handler recorded errors or answered 5xx.
func AccessLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		entry := logger.WithFields(logrus.Fields{
			"method":         c.Request.Method,
			"path":           c.FullPath(),
			"status":         c.Writer.Status(),
			"latency_ms":     time.Since(start).Milliseconds(),
			"correlation_id": cid,
		})
		if username, ok := utils.GetUsernameFromContext(c.Request.Context()); ok {
			entry = entry.WithField("username", username)
		}
		switch {
		case len(c.Errors) > 0:
			entry.Error(c.Errors.String())
		case c.Writer.Status() >= 500:
			entry.Error("request failed")
		default:
			entry.Info("request")
		}
	}
}
