package middleware

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/sqlitecult/internal/auth"
	"github.com/Annany2002/sqlitecult/internal/domain"
)

// Context keys set by APITokenMiddleware.
const (
	APIDatabaseKey = "apiDatabase"
	APIClaimsKey   = "apiClaims"
)

// APITokenAuthenticator validates a token presented for a database.
type APITokenAuthenticator interface {
	AuthenticateAPIToken(ctx context.Context, name, token string) (*domain.Database, *auth.APITokenClaims, error)
}

// APITokenMiddleware authenticates public API requests against the
// credential of the database named in the :db_name path parameter.
func APITokenMiddleware(authn APITokenAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		db, claims, err := authn.AuthenticateAPIToken(c.Request.Context(), c.Param("db_name"), tokenString)
		if err != nil {
			customLog.Warnf("APITokenMiddleware: Authentication failed for database '%s' from %s: %v", c.Param("db_name"), c.ClientIP(), err)
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(APIDatabaseKey, db)
		c.Set(APIClaimsKey, claims)
		c.Next()
	}
}

// RequireCapability rejects requests whose token lacks capability.
func RequireCapability(capability domain.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := APIClaims(c)
		if claims == nil || !claims.Can(capability) {
			_ = c.Error(fmt.Errorf("%w: token lacks the %s permission", auth.ErrTokenForbidden, capability))
			c.Abort()
			return
		}
		c.Next()
	}
}

// APIDatabase returns the database set by APITokenMiddleware.
func APIDatabase(c *gin.Context) *domain.Database {
	if v, ok := c.Get(APIDatabaseKey); ok {
		if db, ok := v.(*domain.Database); ok {
			return db
		}
	}
	return nil
}

// APIClaims returns the claims set by APITokenMiddleware.
func APIClaims(c *gin.Context) *auth.APITokenClaims {
	if v, ok := c.Get(APIClaimsKey); ok {
		if claims, ok := v.(*auth.APITokenClaims); ok {
			return claims
		}
	}
	return nil
}
