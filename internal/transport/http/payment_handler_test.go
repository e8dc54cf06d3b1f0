package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/careforall/settlement/internal/idempotency"
	"github.com/careforall/settlement/internal/logger"
	"github.com/careforall/settlement/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type mapStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *mapStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *mapStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *mapStore) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func newWebhookRouter(t *testing.T, pub *recordingPublisher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log, err := logger.NewLogger("test")
	assert.NoError(t, err)
	svc := service.NewPaymentService(nil, nil, pub, log)
	r := gin.New()
	var store idempotency.Store = &mapStore{data: map[string]string{}}
	RegisterPaymentHandlers(r, svc, store, log)
	return r
}

func postWebhook(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_DuplicateDeliveryPublishesOnce(t *testing.T) {
	pub := &recordingPublisher{}
	r := newWebhookRouter(t, pub)

	body := `{"eventId":"evt-1","pledgeId":7,"status":"captured","holdId":"h-1","transactionId":"tx-1"}`
	w1 := postWebhook(r, body)
	w2 := postWebhook(r, body)

	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, w1.Body.String(), w2.Body.String(), "redelivery replays the cached response")
	assert.Len(t, pub.topics, 1, "exactly one downstream publish")
	assert.Equal(t, service.TopicPaymentUpdate, pub.topics[0])
}

func TestWebhook_DistinctEventsBothPublish(t *testing.T) {
	pub := &recordingPublisher{}
	r := newWebhookRouter(t, pub)

	postWebhook(r, `{"eventId":"evt-1","pledgeId":7,"status":"authorized","holdId":"h-1"}`)
	postWebhook(r, `{"eventId":"evt-2","pledgeId":7,"status":"captured","holdId":"h-1"}`)
	assert.Len(t, pub.topics, 2)
}

func TestWebhook_RejectsMissingEventID(t *testing.T) {
	pub := &recordingPublisher{}
	r := newWebhookRouter(t, pub)

	w := postWebhook(r, `{"pledgeId":7,"status":"captured"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, pub.topics)
}
