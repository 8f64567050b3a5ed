package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	productdomain "github.com/smallbiznis/carbonmarket/internal/product/domain"
)

func (s *Server) ListProducts(c *gin.Context) {
	products, err := s.productSvc.ListCarbonCreditProducts(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]productdomain.Response, 0, len(products))
	for _, p := range products {
		resp = append(resp, productdomain.ToResponse(p))
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetProductByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		AbortWithError(c, productdomain.ErrInvalidID)
		return
	}

	product, err := s.productSvc.GetProduct(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if product == nil {
		AbortWithError(c, productdomain.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": productdomain.ToResponse(*product)})
}
