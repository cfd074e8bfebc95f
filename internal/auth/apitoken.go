package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Annany2002/sqlitecult/internal/domain"
)

// ErrTokenDatabaseMismatch is returned for a correctly signed token that
// names a different database than the one addressed.
var ErrTokenDatabaseMismatch = fmt.Errorf("%w: token was issued for a different database", ErrTokenInvalid)

// DefaultAPITokenLifetime applies when no lifetime is configured.
const DefaultAPITokenLifetime = 365 * 24 * time.Hour

const apiTokenSubjectPrefix = "db:"

// APITokenClaims is the payload of a database scoped API token.
type APITokenClaims struct {
	DatabaseID   int64               `json:"sqlite_file_id"`
	DatabaseName string              `json:"database_name"`
	Permissions  []domain.Capability `json:"permissions"`
	jwt.RegisteredClaims
}

// Validate is called by the jwt parser after the signature and time checks.
func (c *APITokenClaims) Validate() error {
	if c.DatabaseID <= 0 {
		return errors.New("missing database id")
	}
	if c.IssuedAt == nil {
		return errors.New("missing issued-at")
	}
	if c.Subject != apiTokenSubjectPrefix+strconv.FormatInt(c.DatabaseID, 10) {
		return errors.New("subject does not match database id")
	}
	for _, p := range c.Permissions {
		if _, err := domain.ParseCapabilities([]string{string(p)}); err != nil {
			return err
		}
	}
	return nil
}

// Can is a set-membership test on the granted capabilities.
func (c *APITokenClaims) Can(capability domain.Capability) bool {
	return slices.Contains(c.Permissions, capability)
}

// APITokenManager issues and validates API tokens. Each database's tokens
// are signed with the global secret combined with that database's signing
// key, so rotating the key revokes every token issued before.
type APITokenManager struct {
	Secret          string
	DefaultLifetime time.Duration
	now             func() time.Time
}

// NewAPITokenManager builds a manager; a zero lifetime selects the default.
func NewAPITokenManager(secret string, lifetime time.Duration) *APITokenManager {
	if lifetime <= 0 {
		lifetime = DefaultAPITokenLifetime
	}
	return &APITokenManager{Secret: secret, DefaultLifetime: lifetime, now: time.Now}
}

// NewSigningKey returns a random per-database signing key.
func NewSigningKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate signing key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (m *APITokenManager) key(cred *domain.ApiCredential) []byte {
	return []byte(m.Secret + "." + cred.SigningKey)
}

// Issue signs a token for the credential's database carrying perms. A zero
// lifetime uses the manager default.
func (m *APITokenManager) Issue(cred *domain.ApiCredential, databaseName string, perms []domain.Capability, lifetime time.Duration) (string, time.Time, error) {
	if cred == nil || cred.SigningKey == "" {
		return "", time.Time{}, errors.New("api credential has no signing key")
	}
	if lifetime <= 0 {
		lifetime = m.DefaultLifetime
	}
	now := m.now()
	expiresAt := now.Add(lifetime)
	claims := APITokenClaims{
		DatabaseID:   cred.DatabaseID,
		DatabaseName: databaseName,
		Permissions:  perms,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   apiTokenSubjectPrefix + strconv.FormatInt(cred.DatabaseID, 10),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key(cred))
	if err != nil {
		customLog.Warnf("Error signing API token for database %d: %v", cred.DatabaseID, err)
		return "", time.Time{}, fmt.Errorf("failed to generate api token")
	}
	return signed, expiresAt, nil
}

// Validate checks signature and expiry in one step and then that the token
// belongs to expectedDatabaseID.
func (m *APITokenManager) Validate(tokenString string, cred *domain.ApiCredential, expectedDatabaseID int64) (*APITokenClaims, error) {
	if cred == nil || cred.SigningKey == "" {
		return nil, ErrTokenInvalid
	}
	claims := &APITokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, hmacKey(m.key(cred)),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		customLog.Warnf("API token validation failed for database %d: %v", expectedDatabaseID, err)
		if errors.Is(err, jwt.ErrTokenInvalidClaims) && !errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenClaimsInvalid
		}
		return nil, mapJWTError(err)
	}
	if claims.DatabaseID != expectedDatabaseID {
		customLog.Warnf("API token for database %d presented to database %d", claims.DatabaseID, expectedDatabaseID)
		return nil, ErrTokenDatabaseMismatch
	}
	return claims, nil
}
