package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/carbonmarket/internal/observability/logger"
	purchasedomain "github.com/smallbiznis/carbonmarket/internal/purchase/domain"
	"github.com/smallbiznis/carbonmarket/internal/resolver"
	"go.uber.org/zap"
)

type purchaseRequest struct {
	Items           []purchasedomain.Item `json:"items"`
	PaymentIntentID string                `json:"payment_intent_id"`
}

// RequestCarbonCredits records the purchase and empties the cart once the
// request is stored. Credits are granted later by the reconciler.
func (s *Server) RequestCarbonCredits(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	userID := currentUserID(c)
	result, err := s.purchaseSvc.RequestCarbonCredits(ctx, purchasedomain.RecordRequest{
		UserID:           userID,
		Items:            req.Items,
		PaymentReference: strings.TrimSpace(req.PaymentIntentID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.cartSvc.Clear(ctx, userID); err != nil {
		logger.WithContext(ctx, s.log).Warn("clear cart after purchase failed",
			zap.String("request_id", result.RequestID),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// GetPurchase waits for the payment and its items to become visible.
func (s *Server) GetPurchase(c *gin.Context) {
	res, err := s.resolver.ResolvePurchase(c.Request.Context(), currentUserID(c), c.Param("payment_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (s *Server) GetPurchaseReceipt(c *gin.Context) {
	ctx := c.Request.Context()
	res, err := s.resolver.ResolvePurchase(ctx, currentUserID(c), c.Param("payment_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data, ok := resolver.Receipt(res)
	if !ok || res.Request.Status != purchasedomain.StatusSuccess {
		AbortWithError(c, ErrNotFound)
		return
	}

	body, err := s.receipts.GenerateReceipt(ctx, data)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="receipt-%s.pdf"`, data.Number))
	c.Data(http.StatusOK, "application/pdf", body)
}

func (s *Server) ListCredits(c *gin.Context) {
	credits, err := s.purchaseSvc.Credits(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if credits == nil {
		credits = []purchasedomain.PurchasedCredit{}
	}

	var total int64
	for _, credit := range credits {
		total += credit.Quantity
	}

	c.JSON(http.StatusOK, gin.H{"data": credits, "total": total})
}
