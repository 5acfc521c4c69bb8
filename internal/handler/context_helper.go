package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/advance-api/internal/middleware"
	"github.com/noah-isme/advance-api/internal/models"
)

// claimsFromContext returns the caller verified by middleware.JWT, or nil on
// routes outside the secured group.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, _ := c.Get(middleware.ContextUserKey)
	claims, _ := value.(*models.JWTClaims)
	return claims
}
