package handlers

import (
	"github.com/formadex/crm-backend/internal/models"
	"github.com/labstack/echo/v4"
)

// getClaimsFromContext returns the staff claims placed by the JWT
// middleware, or nil when absent.
func getClaimsFromContext(c echo.Context) *models.JwtCustomClaims {
	claims, ok := c.Get("user").(*models.JwtCustomClaims)
	if !ok {
		return nil
	}
	return claims
}

func getUserIDFromContext(c echo.Context) uint {
	claims := getClaimsFromContext(c)
	if claims == nil {
		return 0
	}
	return claims.UserID
}
