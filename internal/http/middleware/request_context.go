package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-tutor/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

const requestIDHeader = "X-Request-ID"

// AttachRequestContext stamps every request with an id, echoed back in the
// response header, and logs the outcome once the handler chain finishes.
func AttachRequestContext(log *logger.Logger) gin.HandlerFunc {
	log = log.With("middleware", "RequestContext")
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{RequestID: reqID})
		c.Request = c.Request.WithContext(ctx)
		c.Header(requestIDHeader, reqID)

		start := time.Now()
		c.Next()

		kv := []interface{}{
			"request_id", reqID,
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil && rd.UserID != uuid.Nil {
			kv = append(kv, "user_id", rd.UserID)
		}
		if len(c.Errors) > 0 {
			log.Error("Request failed", append(kv, "error", c.Errors.String())...)
			return
		}
		log.Debug("Request served", kv...)
	}
}
