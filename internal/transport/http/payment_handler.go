package http

import (
	"net/http"

	"github.com/careforall/settlement/internal/idempotency"
	"github.com/careforall/settlement/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RegisterPaymentHandlers wires the settlement orchestrator endpoints.
// The webhook route is idempotency-guarded on the payload's eventId so
// provider redeliveries replay the first response.
func RegisterPaymentHandlers(r *gin.Engine, svc *service.PaymentService, store idempotency.Store, log *zap.SugaredLogger) {
	v1 := r.Group("/v1/payments")
	{
		v1.POST("/authorize", paymentAuthorizeHandler(svc))
		v1.POST("/capture", paymentCaptureHandler(svc))
		v1.POST("/process", processHandler(svc))
		v1.POST("/webhook",
			idempotency.Middleware(store, idempotency.FromJSONField("eventId"), log),
			webhookHandler(svc))
	}
}

func paymentError(c *gin.Context, err error) {
	if service.IsBusinessErr(err) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
}

type paymentAuthorizeReq struct {
	PledgeID      uint64 `json:"pledgeId" binding:"required"`
	AccountNumber string `json:"accountNumber" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
}

func paymentAuthorizeHandler(svc *service.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paymentAuthorizeReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid amount"})
			return
		}
		evt, err := svc.Authorize(c, req.PledgeID, req.AccountNumber, amt)
		if err != nil {
			paymentError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": evt.Status == "authorized", "event": evt})
	}
}

type paymentCaptureReq struct {
	PledgeID uint64 `json:"pledgeId" binding:"required"`
	HoldID   string `json:"holdId" binding:"required"`
}

func paymentCaptureHandler(svc *service.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paymentCaptureReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		evt, err := svc.Capture(c, req.PledgeID, req.HoldID)
		if err != nil {
			paymentError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": evt.Status == "captured", "event": evt})
	}
}

type processReq struct {
	PledgeID uint64 `json:"pledgeId" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
}

// processHandler simulates a payment provider; the settlement outcome
// arrives later through the webhook path.
func processHandler(svc *service.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req processReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		status, transactionID := svc.SimulateProvider(req.PledgeID)
		c.JSON(http.StatusOK, gin.H{"status": status, "transactionId": transactionID})
	}
}

func webhookHandler(svc *service.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var evt service.SettlementEvent
		if err := c.ShouldBindJSON(&evt); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if evt.EventID == "" || evt.PledgeID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "eventId and pledgeId are required"})
			return
		}
		if err := svc.HandleWebhook(c, evt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
