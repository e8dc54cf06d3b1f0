package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/careforall/settlement/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore { return &memStore{data: map[string]string{}} }

func (s *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func newGuardedRouter(store Store, keyFn KeyFunc, calls *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log, _ := logger.NewLogger("test")
	r := gin.New()
	r.POST("/hook", Middleware(store, keyFn, log), func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusOK, gin.H{"received": true, "call": *calls})
	})
	return r
}

func post(r *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_ReplaysCachedResponse(t *testing.T) {
	calls := 0
	r := newGuardedRouter(newMemStore(), FromJSONField("eventId"), &calls)

	body := `{"eventId":"evt-1","pledgeId":7,"status":"captured"}`
	w1 := post(r, body, nil)
	w2 := post(r, body, nil)

	assert.Equal(t, 1, calls, "handler must run exactly once")
	assert.Equal(t, w1.Code, w2.Code)
	assert.Equal(t, w1.Body.String(), w2.Body.String())
	assert.Equal(t, w1.Header().Get("Content-Type"), w2.Header().Get("Content-Type"))
}

func TestMiddleware_ReplayKeepsAllHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, _ := logger.NewLogger("test")
	calls := 0
	r := gin.New()
	r.POST("/hook", Middleware(newMemStore(), FromJSONField("eventId"), log), func(c *gin.Context) {
		calls++
		c.Header("X-Request-Id", "req-1")
		c.Header("Location", "/v1/pledges/7")
		c.JSON(http.StatusCreated, gin.H{"received": true})
	})

	body := `{"eventId":"evt-1"}`
	w1 := post(r, body, nil)
	w2 := post(r, body, nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, w1.Code, w2.Code)
	assert.Equal(t, "req-1", w2.Header().Get("X-Request-Id"))
	assert.Equal(t, "/v1/pledges/7", w2.Header().Get("Location"))
	assert.Equal(t, w1.Header().Get("Content-Type"), w2.Header().Get("Content-Type"))
}

func TestMiddleware_DistinctKeysBothExecute(t *testing.T) {
	calls := 0
	r := newGuardedRouter(newMemStore(), FromJSONField("eventId"), &calls)

	post(r, `{"eventId":"evt-1"}`, nil)
	post(r, `{"eventId":"evt-2"}`, nil)
	assert.Equal(t, 2, calls)
}

func TestMiddleware_MissingKeySkipsGuard(t *testing.T) {
	calls := 0
	r := newGuardedRouter(newMemStore(), FromJSONField("eventId"), &calls)

	post(r, `{"pledgeId":7}`, nil)
	post(r, `{"pledgeId":7}`, nil)
	assert.Equal(t, 2, calls, "unkeyed requests are not deduplicated")
}

func TestMiddleware_HeaderKey(t *testing.T) {
	calls := 0
	r := newGuardedRouter(newMemStore(), FromHeader("X-Idempotency-Key"), &calls)

	h := map[string]string{"X-Idempotency-Key": "client-key-1"}
	w1 := post(r, `{"campaignId":1,"amount":"10"}`, h)
	w2 := post(r, `{"campaignId":1,"amount":"10"}`, h)

	assert.Equal(t, 1, calls)
	assert.Equal(t, w1.Body.String(), w2.Body.String())
}

func TestMiddleware_BodyStillReadableByHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, _ := logger.NewLogger("test")
	r := gin.New()
	var seen string
	r.POST("/hook", Middleware(newMemStore(), FromJSONField("eventId"), log), func(c *gin.Context) {
		var doc struct {
			EventID string `json:"eventId"`
		}
		assert.NoError(t, c.ShouldBindJSON(&doc))
		seen = doc.EventID
		c.Status(http.StatusOK)
	})

	post(r, `{"eventId":"evt-9"}`, nil)
	assert.Equal(t, "evt-9", seen)
}

func TestMiddleware_ServerErrorsAreNotCached(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, _ := logger.NewLogger("test")
	store := newMemStore()
	calls := 0
	r := gin.New()
	r.POST("/hook", Middleware(store, FromJSONField("eventId"), log), func(c *gin.Context) {
		calls++
		if calls == 1 {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "transient"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	})

	w1 := post(r, `{"eventId":"evt-1"}`, nil)
	w2 := post(r, `{"eventId":"evt-1"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, w1.Code)
	assert.Equal(t, http.StatusOK, w2.Code, "a failed attempt must be retryable for real")
	assert.Equal(t, 2, calls)
}
