package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"propagation-service/internal/access"
	"propagation-service/internal/feature"
	"propagation-service/pkg/jwtutil"
	"propagation-service/pkg/logger"
)

const principalContextKey = "principal"

// JWTAuthMiddleware validates the bearer token and stores the request
// principal in the echo context.
func JWTAuthMiddleware(jwtUtil *jwtutil.JWTUtil) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			// Extract the token from the Authorization header
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing authorization header")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Missing authorization header"})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Warn("Invalid authorization header format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid authorization header format"})
			}

			claims, err := jwtUtil.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid or expired token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid or expired token"})
			}

			c.Set(principalContextKey, PrincipalFromClaims(claims))
			log.Debug("JWT token validated successfully",
				zap.Uint("user_id", claims.UserID),
				zap.String("email", claims.Email))

			return next(c)
		}
	}
}

// PrincipalFromClaims builds the access principal from verified claims.
func PrincipalFromClaims(claims *jwtutil.UserClaims) access.Principal {
	p := access.Principal{
		UserID:       claims.UserID,
		PlatformRole: feature.PlatformRole(claims.PlatformRole),
		TenantRoles:  make(map[uint]feature.TenantRole, len(claims.TenantRoles)),
		TenantTiers:  make(map[uint]feature.Tier, len(claims.TenantTiers)),
	}
	for id, role := range claims.TenantRoles {
		if tenantID, err := strconv.ParseUint(id, 10, 32); err == nil {
			p.TenantRoles[uint(tenantID)] = feature.TenantRole(role)
		}
	}
	for id, tier := range claims.TenantTiers {
		if tenantID, err := strconv.ParseUint(id, 10, 32); err == nil {
			p.TenantTiers[uint(tenantID)] = feature.Tier(tier)
		}
	}
	return p
}

// PrincipalFromEcho retrieves the principal stored by JWTAuthMiddleware.
func PrincipalFromEcho(c echo.Context) (access.Principal, bool) {
	p, ok := c.Get(principalContextKey).(access.Principal)
	return p, ok
}
