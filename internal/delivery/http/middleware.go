package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/aphrodite-labs/phishguard/internal/domain"
	"github.com/aphrodite-labs/phishguard/pkg/security"
)

// JWTMiddleware intercepts the request to validate the JWT token in the
// Authorization header.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization header"})
			}

			// Expected format: "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format"})
			}

			claims, err := security.ValidateToken(parts[1], secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			// Inject extracted user information into the echo context so
			// subsequent handlers can identify the user.
			c.Set("user_id", claims.UserID)
			c.Set("role", claims.Role)

			return next(c)
		}
	}
}

// RoleMiddleware ensures only users with specific roles (or admins) can
// access the route.
func RoleMiddleware(requiredRole string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get("role").(string)

			// Admins have full access, others need the specific role.
			if !ok || (role != requiredRole && role != "admin") {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied: insufficient permissions"})
			}

			return next(c)
		}
	}
}

// userID extracts the authenticated user set by JWTMiddleware.
func userID(c echo.Context) string {
	id, _ := c.Get("user_id").(string)
	return id
}

// requestMeta collects transport metadata for the audit trail.
func requestMeta(c echo.Context) domain.RequestMeta {
	return domain.RequestMeta{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}
