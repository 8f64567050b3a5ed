package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	emissionsdomain "github.com/smallbiznis/carbonmarket/internal/emissions/domain"
)

type saveEmissionsRequest struct {
	Inputs    map[string]any     `json:"inputs"`
	Subtotals map[string]float64 `json:"subtotals"`
}

type emissionsResponse struct {
	*emissionsdomain.Document
	NetEmissions float64 `json:"net_emissions"`
}

func (s *Server) GetEmissions(c *gin.Context) {
	doc, err := s.emissionsSvc.Get(c.Request.Context(), currentUserID(c), c.Param("month"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if doc == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": emissionsResponse{Document: doc, NetEmissions: doc.NetEmissions()}})
}

func (s *Server) SaveEmissions(c *gin.Context) {
	var req saveEmissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	doc, err := s.emissionsSvc.Save(c.Request.Context(), emissionsdomain.SaveRequest{
		UserID:    currentUserID(c),
		Month:     c.Param("month"),
		Inputs:    req.Inputs,
		Subtotals: req.Subtotals,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": emissionsResponse{Document: doc, NetEmissions: doc.NetEmissions()}})
}

func (s *Server) GetCommunityEmissions(c *gin.Context) {
	stats, err := s.emissionsSvc.CommunityStats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if stats == nil {
		stats = &emissionsdomain.CommunityStats{}
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"user_months":     stats.UserMonths,
		"total_emissions": stats.TotalEmissions,
		"average":         stats.Average(),
	}})
}
