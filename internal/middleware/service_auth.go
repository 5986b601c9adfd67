package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ServiceTokenHeader carries the shared secret for non-interactive callers
// (the scheduler and the workflow engine). Distinct from end-user sessions.
const ServiceTokenHeader = "X-Service-Token"

// ServiceAuthMiddleware guards endpoints invoked by trusted machines rather
// than signed-in staff. The comparison is constant time.
func ServiceAuthMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				// Fail closed when the deployment never configured a secret.
				return echo.NewHTTPError(http.StatusUnauthorized, "Service credential not configured")
			}

			token := c.Request().Header.Get(ServiceTokenHeader)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing service credential")
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid service credential")
			}

			return next(c)
		}
	}
}
