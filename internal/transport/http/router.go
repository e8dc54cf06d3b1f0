package http

import (
	"github.com/careforall/settlement/internal/config"
	"github.com/careforall/settlement/internal/idempotency"
	"github.com/careforall/settlement/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func newEngine(rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	return r
}

func NewBankRouter(svc *service.LedgerService, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := newEngine(rl, log)
	RegisterBankHandlers(r, svc)
	return r
}

func NewPaymentRouter(svc *service.PaymentService, store idempotency.Store, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := newEngine(rl, log)
	RegisterPaymentHandlers(r, svc, store, log)
	return r
}

func NewPledgeRouter(svc *service.PledgeService, store idempotency.Store, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := newEngine(rl, log)
	RegisterPledgeHandlers(r, svc, store, log)
	return r
}
