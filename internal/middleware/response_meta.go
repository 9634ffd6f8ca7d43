package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/pkg/middleware/requestid"
)

const responseMetaKey = "response_meta"

// WithResponseMeta attaches a meta map to the request that handlers fill in and
// pass to the response envelope. Request id and elapsed time are added after the
// handler returns unless the handler recorded them itself.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		meta := map[string]interface{}{}
		c.Set(responseMetaKey, meta)
		c.Next()
		if id := requestid.Value(c); id != "" {
			if _, ok := meta["request_id"]; !ok {
				meta["request_id"] = id
			}
		}
		if _, ok := meta["processing_time_ms"]; !ok {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetMeta stores one response meta value.
func SetMeta(c *gin.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	meta := ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
		c.Set(responseMetaKey, meta)
	}
	meta[key] = value
}

// SetCacheHit records whether the payload came from redis.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, "cache_hit", hit)
}

// ExtractMeta returns the meta map, or nil outside WithResponseMeta.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	v, ok := c.Get(responseMetaKey)
	if !ok {
		return nil
	}
	meta, _ := v.(map[string]interface{})
	return meta
}
