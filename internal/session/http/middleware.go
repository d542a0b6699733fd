package http

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/autoapi/internal/errors"
	"github.com/allisson/autoapi/internal/httputil"
	sessionUseCase "github.com/allisson/autoapi/internal/session/usecase"
)

// BearerToken extracts the plain bearer token from the Authorization header.
// Returns an empty string when the header is missing or malformed. The
// "bearer" prefix is matched case-insensitively.
func BearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	const bearerPrefix = "bearer "
	if len(authHeader) < len(bearerPrefix) ||
		!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return authHeader[len(bearerPrefix):]
}

// AuthenticationMiddleware provides authentication via Bearer token in the
// Authorization header.
//
// The middleware:
// 1. Extracts the Bearer token from the Authorization header (case-insensitive)
// 2. Validates the token using sessionUseCase.Validate()
// 3. Stores the authenticated subject in the request context
// 4. Allows downstream handlers to access the subject via GetSubject()
//
// Authorization header format: "Bearer <token>" (case-insensitive "bearer")
//
// Error handling:
//   - Missing Authorization header → 401 Unauthorized
//   - Malformed Authorization header → 401 Unauthorized
//   - Unknown/expired/revoked token → 401 Unauthorized (from SessionUseCase.Validate)
//
// All failures produce the same 401 response body so a caller cannot tell
// which condition failed.
func AuthenticationMiddleware(
	sessions sessionUseCase.SessionUseCase,
	logger *slog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		plainToken := BearerToken(c)
		if plainToken == "" {
			logger.Debug("authentication failed: missing or malformed authorization header")
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		subject, err := sessions.Validate(c.Request.Context(), plainToken)
		if err != nil {
			logger.Debug("authentication failed",
				slog.String("error", err.Error()))
			httputil.HandleErrorGin(c, err, logger)
			c.Abort()
			return
		}

		// Store authenticated subject in context
		ctx := WithSubject(c.Request.Context(), subject)
		c.Request = c.Request.WithContext(ctx)

		logger.Debug("authentication successful",
			slog.String("subject", subject))

		c.Next()
	}
}
