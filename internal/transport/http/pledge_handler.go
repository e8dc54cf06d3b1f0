package http

import (
	"net/http"
	"strconv"

	"github.com/careforall/settlement/internal/idempotency"
	"github.com/careforall/settlement/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RegisterPledgeHandlers wires pledge creation and reads. Creation
// honors a client-supplied X-Idempotency-Key so a retried POST returns
// the original pledge instead of a duplicate.
func RegisterPledgeHandlers(r *gin.Engine, svc *service.PledgeService, store idempotency.Store, log *zap.SugaredLogger) {
	v1 := r.Group("/v1/pledges")
	{
		v1.POST("",
			idempotency.Middleware(store, idempotency.FromHeader("X-Idempotency-Key"), log),
			createPledgeHandler(svc))
		v1.GET("/:id", getPledgeHandler(svc))
	}
}

type createPledgeReq struct {
	CampaignID uint64  `json:"campaignId" binding:"required"`
	UserID     *uint64 `json:"userId"`
	Amount     string  `json:"amount" binding:"required"`
}

func createPledgeHandler(svc *service.PledgeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPledgeReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		pledge, err := svc.Create(c, req.CampaignID, req.UserID, amt)
		if err != nil {
			if service.IsBusinessErr(err) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create pledge"})
			return
		}
		c.JSON(http.StatusCreated, pledge)
	}
}

func getPledgeHandler(svc *service.PledgeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pledge id"})
			return
		}
		pledge, err := svc.Get(c, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if pledge == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "pledge not found"})
			return
		}
		c.JSON(http.StatusOK, pledge)
	}
}
