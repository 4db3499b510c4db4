package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HeaderAPIKey is the request header checked by APIKey.
const HeaderAPIKey = "X-API-Key"

// APIKey guards a route with a shared secret. When the server has no key
// configured every request is refused with 500 so a misconfigured deploy
// never serves unauthenticated lookups.
func APIKey(expected string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if expected == "" {
				zap.L().Warn("API_KEY not configured, rejecting request",
					zap.String("request_id", RequestIDFromContext(c)))
				return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "server is not configured (missing API_KEY)"})
			}

			got := c.Request().Header.Get(HeaderAPIKey)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"detail": "invalid X-API-Key"})
			}

			c.Set(ContextKeyAPIClient, "api-key")
			return next(c)
		}
	}
}
