// internal/auth/auth.go
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Annany2002/sqlitecult/api/models"
	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/logger"
)

var (
	ErrTokenMalformed          = fmt.Errorf("%w: malformed token", core.ErrAuthInvalid)
	ErrTokenExpired            = fmt.Errorf("%w: token is expired or not valid yet", core.ErrAuthExpired)
	ErrTokenInvalid            = fmt.Errorf("%w: invalid token", core.ErrAuthInvalid)
	ErrTokenClaimsInvalid      = fmt.Errorf("%w: invalid token claims", ErrTokenInvalid)
	ErrUnexpectedSigningMethod = fmt.Errorf("%w: unexpected token signing method", ErrTokenInvalid)
	ErrUnauthorized            = fmt.Errorf("%w: authorization required", core.ErrAuthInvalid)
	ErrInvalidCredentials      = fmt.Errorf("%w: invalid email or password", core.ErrAuthInvalid)
	ErrTokenForbidden          = fmt.Errorf("%w: token does not allow this action", core.ErrPermissionDenied)
	customLog                  = logger.NewLogger()
)

const issuer = "sqlitecult"

// --- Password Utilities ---

// HashPassword generates a bcrypt hash for the given password
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		customLog.Warnf("Error generating bcrypt hash: %v", err)
		return "", fmt.Errorf("failed to hash password")
	}
	return string(bytes), nil
}

// CheckPasswordHash compares a plaintext password with a stored bcrypt hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		customLog.Warnf("Unexpected error comparing password hash: %v", err)
	}
	return err == nil
}

// --- JWT Utilities ---

// GenerateJWT creates a signed session token for a user.
func GenerateJWT(userID string, isAdmin bool, jwtSecret string, jwtExpiration time.Duration) (string, error) {
	now := time.Now()
	claims := models.CustomClaims{
		UserID:  userID,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		customLog.Warnf("Error signing JWT for user %s: %v", userID, err)
		return "", fmt.Errorf("failed to generate token")
	}
	return signedToken, nil
}

// ValidateJWT parses and validates a session token, returning its claims.
func ValidateJWT(tokenString, jwtSecret string) (*models.CustomClaims, error) {
	claims := &models.CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, hmacKey([]byte(jwtSecret)),
		jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		customLog.Warnf("ValidateJWT: Token parsing error: %v", err)
		return nil, mapJWTError(err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.UserID == "" {
		customLog.Warnf("ValidateJWT: UserID missing in token claims")
		return nil, ErrTokenClaimsInvalid
	}
	return claims, nil
}

func hmacKey(key []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			customLog.Warnf("Unexpected signing method: %v", token.Header["alg"])
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedSigningMethod, token.Header["alg"])
		}
		return key, nil
	}
}

// mapJWTError translates library errors into ours, keeping expired apart
// from every other failure.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, ErrUnexpectedSigningMethod):
		return ErrUnexpectedSigningMethod
	case errors.Is(err, ErrTokenClaimsInvalid):
		return ErrTokenClaimsInvalid
	default:
		return ErrTokenInvalid
	}
}
