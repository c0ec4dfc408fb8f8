package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dentalogic/clinic-api/pkg/middleware/requestid"
)

const responseMetaKey = "response_meta"

// WithResponseMeta seeds per-request metadata that cached endpoints attach
// to their response envelope: request id, cache outcome, processing time.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		meta := map[string]interface{}{}
		if reqID := requestid.Value(c); reqID != "" {
			meta["request_id"] = reqID
		}
		c.Set(responseMetaKey, meta)
		c.Next()
		if _, exists := meta["processing_time_ms"]; !exists {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit records whether the response was served from the calendar or
// dashboard cache.
func SetCacheHit(c *gin.Context, hit bool) {
	metaFrom(c, true)["cache_hit"] = hit
}

// ExtractMeta returns the metadata map stored on the context, nil if absent.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	return metaFrom(c, false)
}

func metaFrom(c *gin.Context, create bool) map[string]interface{} {
	if c != nil {
		if v, exists := c.Get(responseMetaKey); exists {
			if meta, ok := v.(map[string]interface{}); ok {
				return meta
			}
		}
	}
	if !create {
		return nil
	}
	meta := map[string]interface{}{}
	if c != nil {
		c.Set(responseMetaKey, meta)
	}
	return meta
}
