// api/handlers/auth_handler.go
package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Annany2002/sqlitecult/api/models"
	"github.com/Annany2002/sqlitecult/config"
	"github.com/Annany2002/sqlitecult/internal/auth"
	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
	"github.com/Annany2002/sqlitecult/internal/storage"
)

// ErrRegistrationDisabled is returned by Signup when sign-ups are closed.
var ErrRegistrationDisabled = fmt.Errorf("%w: registration is disabled", core.ErrPermissionDenied)

// AuthHandler holds dependencies for authentication handlers.
type AuthHandler struct {
	DB  *sql.DB        // Metadata DB connection pool
	Cfg *config.Config // Application configuration
}

// NewAuthHandler creates a new AuthHandler with dependencies.
func NewAuthHandler(db *sql.DB, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		DB:  db,
		Cfg: cfg,
	}
}

// Signup handles user registration requests.
func (h *AuthHandler) Signup(c *gin.Context) {
	if !h.Cfg.RegistrationEnabled {
		_ = c.Error(ErrRegistrationDisabled)
		return
	}

	var req models.SignupRequest
	if err := bindJSON(c, &req); err != nil {
		customLog.Warnf("Signup binding error: %v", err)
		_ = c.Error(err)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}

	newUser := &domain.User{
		UserID:       uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashedPassword,
	}
	if err := storage.CreateUser(c.Request.Context(), h.DB, newUser); err != nil {
		customLog.Warnf("Failed to create user %s: %v", req.Email, err)
		_ = c.Error(err) // ErrEmailExists / ErrUsernameExists map to 409
		return
	}

	customLog.Printf("Successfully registered user %s", req.Username)
	c.JSON(http.StatusCreated, gin.H{"user_id": newUser.UserID, "message": "User registered successfully"})
}

// Login handles user login requests and issues JWT on success.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	user, err := storage.FindUserByEmail(c.Request.Context(), h.DB, req.Email)
	if err != nil {
		customLog.Warnf("Login failed for email %s: %v", req.Email, err)
		if errors.Is(err, core.ErrNotFound) {
			err = auth.ErrInvalidCredentials
		}
		_ = c.Error(err)
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		customLog.Warnf("Login attempt failed for email %s: invalid password", user.Email)
		_ = c.Error(auth.ErrInvalidCredentials)
		return
	}

	tokenString, err := auth.GenerateJWT(user.UserID, user.IsPrivileged(), h.Cfg.JWTSecret, h.Cfg.JWTExpiration)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{Message: "Login successful", User: *user, Token: tokenString})
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": user(c)})
}

// ListUsers returns the other accounts, for picking a grantee.
func (h *AuthHandler) ListUsers(c *gin.Context) {
	users, err := storage.ListUsers(c.Request.Context(), h.DB, user(c).UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
