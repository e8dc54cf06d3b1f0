package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/careforall/settlement/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func RegisterBankHandlers(r *gin.Engine, svc *service.LedgerService) {
	v1 := r.Group("/v1/bank")
	{
		v1.POST("/accounts", createAccountHandler(svc))
		v1.POST("/authorize", authorizeHandler(svc))
		v1.POST("/capture", captureHandler(svc))
		v1.POST("/release", releaseHandler(svc))
		v1.POST("/check-balance", checkBalanceHandler(svc))
		v1.GET("/accounts/:accountNumber", accountHandler(svc))
		v1.GET("/accounts/:accountNumber/transactions", transactionsHandler(svc))
	}
}

// bankError maps business failures to a 4xx {success:false,error} body
// and everything else to an opaque 500.
func bankError(c *gin.Context, err error) {
	if service.IsBusinessErr(err) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
}

type createAccountReq struct {
	AccountNumber  string `json:"accountNumber" binding:"required"`
	HolderName     string `json:"accountHolderName" binding:"required"`
	Email          string `json:"email" binding:"required"`
	OpeningBalance string `json:"openingBalance"`
}

func createAccountHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createAccountReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		opening := decimal.Zero
		if req.OpeningBalance != "" {
			var err error
			opening, err = decimal.NewFromString(req.OpeningBalance)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid openingBalance"})
				return
			}
		}
		account, err := svc.CreateAccount(c, req.AccountNumber, req.HolderName, req.Email, opening)
		if err != nil {
			bankError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "accountNumber": account.AccountNumber})
	}
}

type authorizeReq struct {
	AccountNumber string `json:"accountNumber" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	Reference     string `json:"reference" binding:"required"`
}

func authorizeHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req authorizeReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid amount"})
			return
		}
		holdID, err := svc.AuthorizePayment(c, req.AccountNumber, amt, req.Reference)
		if err != nil {
			bankError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "holdId": holdID, "message": "Payment authorized"})
	}
}

type holdReq struct {
	HoldID string `json:"holdId" binding:"required"`
}

func captureHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req holdReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		transactionID, err := svc.CapturePayment(c, req.HoldID)
		if err != nil {
			bankError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "transactionId": transactionID, "message": "Payment captured"})
	}
}

func releaseHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req holdReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		if err := svc.ReleaseHold(c, req.HoldID); err != nil {
			bankError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Hold released"})
	}
}

type checkBalanceReq struct {
	AccountNumber string `json:"accountNumber" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
}

func checkBalanceHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req checkBalanceReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid amount"})
			return
		}
		available, err := svc.CheckBalance(c, req.AccountNumber, amt)
		if err != nil {
			if errors.Is(err, service.ErrInsufficientFunds) {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "balance": available, "error": err.Error()})
				return
			}
			bankError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "balance": available})
	}
}

func accountHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := svc.GetAccount(c, c.Param("accountNumber"))
		if err != nil {
			bankError(c, err)
			return
		}
		if view == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func transactionsHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 {
			limit = 50
		}
		txs, err := svc.GetTransactions(c, c.Param("accountNumber"), limit)
		if err != nil {
			bankError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": txs})
	}
}
