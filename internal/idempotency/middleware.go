// Package idempotency deduplicates externally triggered writes: retried
// client requests and redelivered webhooks replay the first response
// instead of re-executing side effects.
package idempotency

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TTL is how long a cached response stays replayable.
const TTL = 24 * time.Hour

// KeyFunc derives the idempotency key from a request. Returning "" skips
// the guard for that request. Keys must be pure functions of request
// content, never of arrival time.
type KeyFunc func(c *gin.Context) string

// FromHeader keys on a client-supplied token header.
func FromHeader(header string) KeyFunc {
	return func(c *gin.Context) string {
		return c.GetHeader(header)
	}
}

// FromJSONField keys on a field of the JSON body, e.g. a webhook's
// eventId. The body is restored for the handler.
func FromJSONField(field string) KeyFunc {
	return func(c *gin.Context) string {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return ""
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		var doc map[string]interface{}
		if err := json.Unmarshal(body, &doc); err != nil {
			return ""
		}
		if v, ok := doc[field].(string); ok {
			return v
		}
		return ""
	}
}

type cachedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   string      `json:"body"`
}

type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// Middleware replays a cached response when the derived key was seen
// before, otherwise runs the handler and snapshots its response. Server
// errors are not cached so a transient failure can be retried for real.
func Middleware(store Store, keyFn KeyFunc, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" {
			c.Next()
			return
		}
		key = "idempotency:" + key

		cached, hit, err := store.Get(c.Request.Context(), key)
		if err != nil {
			// The store being down must not block writes; the downstream
			// consumers dedupe again on their side.
			log.Warnf("idempotency store get: %v", err)
			c.Next()
			return
		}
		if hit {
			var resp cachedResponse
			if err := json.Unmarshal([]byte(cached), &resp); err == nil {
				log.Infof("replaying cached response for %s", key)
				for k, vs := range resp.Header {
					for _, v := range vs {
						c.Writer.Header().Add(k, v)
					}
				}
				c.Writer.WriteHeader(resp.Status)
				c.Writer.Write([]byte(resp.Body))
				c.Abort()
				return
			}
		}

		cw := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = cw
		c.Next()

		status := cw.Status()
		if status >= http.StatusInternalServerError {
			return
		}
		snapshot, err := json.Marshal(cachedResponse{
			Status: status,
			Header: cw.Header().Clone(),
			Body:   cw.buf.String(),
		})
		if err != nil {
			return
		}
		if err := store.Set(c.Request.Context(), key, string(snapshot), TTL); err != nil {
			log.Warnf("idempotency store set: %v", err)
		}
	}
}
