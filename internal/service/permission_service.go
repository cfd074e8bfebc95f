package service

import (
	"context"
	"errors"

	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
	"github.com/Annany2002/sqlitecult/internal/storage"
)

// PermissionService exposes grant management by database name.
type PermissionService struct {
	Databases *DatabaseService
}

func NewPermissionService(databases *DatabaseService) *PermissionService {
	return &PermissionService{Databases: databases}
}

// findUser accepts a user id or a username.
func (s *PermissionService) findUser(ctx context.Context, ref string) (*domain.User, error) {
	if ref == "" {
		return nil, core.InvalidInputf("a user is required")
	}
	user, err := s.Databases.Store.FindUserByID(ctx, ref)
	if errors.Is(err, storage.ErrUserNotFound) {
		return s.Databases.Store.FindUserByUsername(ctx, ref)
	}
	return user, err
}

func (s *PermissionService) List(ctx context.Context, actor *domain.User, name string) ([]domain.Permission, error) {
	db, err := s.Databases.Resolver.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.Databases.Resolver.Grants(ctx, actor, db)
}

// Grant gives the user named by granteeRef level on name.
func (s *PermissionService) Grant(ctx context.Context, actor *domain.User, name, granteeRef string, level domain.Level) (*domain.Permission, error) {
	db, err := s.Databases.Resolver.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	grantee, err := s.findUser(ctx, granteeRef)
	if err != nil {
		return nil, err
	}
	if err := s.Databases.Resolver.Grant(ctx, actor, db, grantee, level); err != nil {
		return nil, err
	}
	return s.Databases.Store.FindPermission(ctx, db.DatabaseID, grantee.UserID)
}

func (s *PermissionService) Update(ctx context.Context, actor *domain.User, name, granteeID string, level domain.Level) (*domain.Permission, error) {
	db, err := s.Databases.Resolver.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.Databases.Resolver.UpdateGrant(ctx, actor, db, granteeID, level); err != nil {
		return nil, err
	}
	return s.Databases.Store.FindPermission(ctx, db.DatabaseID, granteeID)
}

func (s *PermissionService) Revoke(ctx context.Context, actor *domain.User, name, granteeID string) error {
	db, err := s.Databases.Resolver.Lookup(ctx, name)
	if err != nil {
		return err
	}
	return s.Databases.Resolver.Revoke(ctx, actor, db, granteeID)
}

// Transfer hands name over to the user named by newOwnerRef.
func (s *PermissionService) Transfer(ctx context.Context, actor *domain.User, name, newOwnerRef string) (*domain.Database, error) {
	db, err := s.Databases.Resolver.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	newOwner, err := s.findUser(ctx, newOwnerRef)
	if err != nil {
		return nil, err
	}
	if err := s.Databases.Resolver.TransferOwnership(ctx, actor, db, newOwner); err != nil {
		return nil, err
	}
	return s.Databases.Store.FindDatabaseByName(ctx, name)
}

// Claim makes actor the owner of an ownerless database.
func (s *PermissionService) Claim(ctx context.Context, actor *domain.User, name string) (*domain.Database, error) {
	db, err := s.Databases.Resolver.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.Databases.Resolver.ClaimLegacy(ctx, actor, db)
}
