package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/sqlitecult/api/models"
	"github.com/Annany2002/sqlitecult/internal/domain"
	"github.com/Annany2002/sqlitecult/internal/service"
)

// PermissionHandler serves sharing and ownership endpoints.
type PermissionHandler struct {
	Permissions *service.PermissionService
}

// NewPermissionHandler creates a new PermissionHandler.
func NewPermissionHandler(permissions *service.PermissionService) *PermissionHandler {
	return &PermissionHandler{Permissions: permissions}
}

func (h *PermissionHandler) ListPermissions(c *gin.Context) {
	grants, err := h.Permissions.List(c.Request.Context(), user(c), c.Param("db_name"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"permissions": grants})
}

// GrantPermission shares the database with a user named by id or username.
func (h *PermissionHandler) GrantPermission(c *gin.Context) {
	var req models.GrantRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	level, err := domain.ParseLevel(req.Level)
	if err != nil {
		_ = c.Error(invalidInput(err))
		return
	}
	grant, err := h.Permissions.Grant(c.Request.Context(), user(c), c.Param("db_name"), req.User, level)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Permission granted", "permission": grant})
}

func (h *PermissionHandler) UpdatePermission(c *gin.Context) {
	var req models.UpdateGrantRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	level, err := domain.ParseLevel(req.Level)
	if err != nil {
		_ = c.Error(invalidInput(err))
		return
	}
	grant, err := h.Permissions.Update(c.Request.Context(), user(c), c.Param("db_name"), c.Param("user_id"), level)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Permission updated", "permission": grant})
}

func (h *PermissionHandler) RevokePermission(c *gin.Context) {
	if err := h.Permissions.Revoke(c.Request.Context(), user(c), c.Param("db_name"), c.Param("user_id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Permission revoked"})
}

// TransferOwnership hands the database to another user.
func (h *PermissionHandler) TransferOwnership(c *gin.Context) {
	var req models.TransferRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	db, err := h.Permissions.Transfer(c.Request.Context(), user(c), c.Param("db_name"), req.NewOwner)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Ownership transferred", "database": db})
}

// ClaimOwnership registers a legacy file to the calling administrator.
func (h *PermissionHandler) ClaimOwnership(c *gin.Context) {
	db, err := h.Permissions.Claim(c.Request.Context(), user(c), c.Param("db_name"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Ownership claimed", "database": db})
}
