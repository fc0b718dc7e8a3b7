// Package http provides admin authentication and rate limiting middleware for the operator API.
package http

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/allisson/propflow/internal/auth/service"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/httputil"
)

const bearerPrefix = "bearer "

// AdminAuthMiddleware requires an "Authorization: Bearer <token>" header whose token
// matches the configured admin hash. The "bearer" scheme is matched case-insensitively.
//
// Missing, malformed, or mismatched tokens all yield 401 Unauthorized.
func AdminAuthMiddleware(verifier service.TokenVerifier, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug("authentication failed: missing authorization header")
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		if len(authHeader) < len(bearerPrefix) ||
			!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
			logger.Debug("authentication failed: malformed authorization header")
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		plainToken := strings.TrimSpace(authHeader[len(bearerPrefix):])
		if !verifier.Verify(plainToken) {
			logger.Debug("authentication failed: invalid admin token",
				slog.String("client_ip", c.ClientIP()))
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		c.Next()
	}
}
