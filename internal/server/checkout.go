package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/carbonmarket/internal/checkout/domain"
)

type paymentSessionRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type subscriptionSessionRequest struct {
	PriceID string `json:"price_id"`
}

func (s *Server) CreatePaymentSession(c *gin.Context) {
	var req paymentSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	secrets, err := s.checkoutSvc.CreateOneTimeSession(c.Request.Context(), checkoutdomain.OneTimeRequest{
		UserID:   currentUserID(c),
		Amount:   req.Amount,
		Currency: strings.TrimSpace(req.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": secrets})
}

func (s *Server) CreateSubscriptionSession(c *gin.Context) {
	var req subscriptionSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	secrets, err := s.checkoutSvc.CreateSubscriptionSession(c.Request.Context(), checkoutdomain.SubscriptionRequest{
		UserID:  currentUserID(c),
		PriceID: strings.TrimSpace(req.PriceID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": secrets})
}
