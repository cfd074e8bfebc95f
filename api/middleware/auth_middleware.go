// api/middleware/auth_middleware.go
package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/sqlitecult/config"
	"github.com/Annany2002/sqlitecult/internal/auth" // Import internal auth logic and errors
	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
	"github.com/Annany2002/sqlitecult/internal/logger"
)

var customLog = logger.NewLogger()

// Context keys set by the authentication middlewares.
const (
	UserKey = "user"
)

// UserFinder loads the account behind a session token.
type UserFinder interface {
	FindUserByID(ctx context.Context, userID string) (*domain.User, error)
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", auth.ErrUnauthorized
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("%w: authorization header format must be Bearer {token}", auth.ErrTokenMalformed)
	}
	return strings.TrimSpace(parts[1]), nil
}

// AuthMiddleware creates a gin middleware for checking JWT authentication.
// The account is reloaded on every request so privilege changes apply at once.
func AuthMiddleware(cfg *config.Config, users UserFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		claims, err := auth.ValidateJWT(tokenString, cfg.JWTSecret)
		if err != nil {
			customLog.Printf("AuthMiddleware: Token validation failed: %v", err)
			_ = c.Error(err)
			c.Abort()
			return
		}

		user, err := users.FindUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				err = fmt.Errorf("%w: account no longer exists", auth.ErrTokenInvalid)
			}
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(UserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user set by AuthMiddleware.
func CurrentUser(c *gin.Context) *domain.User {
	if v, ok := c.Get(UserKey); ok {
		if user, ok := v.(*domain.User); ok {
			return user
		}
	}
	return nil
}
