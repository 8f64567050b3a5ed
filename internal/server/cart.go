package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	cartdomain "github.com/smallbiznis/carbonmarket/internal/cart/domain"
)

type addCartItemRequest struct {
	ProductID   string `json:"product_id"`
	ProductType string `json:"product_type"`
	Name        string `json:"name"`
	Quantity    int64  `json:"quantity"`
}

type cartResponse struct {
	Items []cartdomain.CartItem `json:"items"`
	Count int64                 `json:"count"`
}

func toCartResponse(cart *cartdomain.Cart) cartResponse {
	resp := cartResponse{Items: []cartdomain.CartItem{}}
	if cart == nil {
		return resp
	}
	if cart.Items != nil {
		resp.Items = cart.Items
	}
	resp.Count = cart.Count()
	return resp
}

func (s *Server) GetCart(c *gin.Context) {
	cart, err := s.cartSvc.Items(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toCartResponse(cart)})
}

func (s *Server) GetCartTotal(c *gin.Context) {
	total, err := s.cartSvc.Total(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": total})
}

func (s *Server) AddCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cart, err := s.cartSvc.AddItem(c.Request.Context(), cartdomain.AddItemRequest{
		UserID:      currentUserID(c),
		ProductID:   strings.TrimSpace(req.ProductID),
		ProductType: strings.TrimSpace(req.ProductType),
		Name:        strings.TrimSpace(req.Name),
		Quantity:    req.Quantity,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toCartResponse(cart)})
}

func (s *Server) IncrementCartItem(c *gin.Context) {
	cart, err := s.cartSvc.IncrementItem(c.Request.Context(), currentUserID(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toCartResponse(cart)})
}

func (s *Server) DecrementCartItem(c *gin.Context) {
	cart, err := s.cartSvc.DecrementItem(c.Request.Context(), currentUserID(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toCartResponse(cart)})
}

func (s *Server) ClearCart(c *gin.Context) {
	if err := s.cartSvc.Clear(c.Request.Context(), currentUserID(c)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
