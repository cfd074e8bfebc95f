package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Annany2002/sqlitecult/internal/domain"
)

// MetadataStore binds the metadata functions to one connection pool so they
// can be handed to services behind an interface.
type MetadataStore struct {
	DB *sql.DB
}

// NewMetadataStore wraps db.
func NewMetadataStore(db *sql.DB) *MetadataStore {
	return &MetadataStore{DB: db}
}

func (s *MetadataStore) FindUserByID(ctx context.Context, userID string) (*domain.User, error) {
	return FindUserByUserId(ctx, s.DB, userID)
}

func (s *MetadataStore) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return FindUserByUsername(ctx, s.DB, username)
}

func (s *MetadataStore) FindDatabaseByName(ctx context.Context, name string) (*domain.Database, error) {
	return FindDatabaseByName(ctx, s.DB, name)
}

func (s *MetadataStore) FindDatabaseByFileName(ctx context.Context, fileName string) (*domain.Database, error) {
	return FindDatabaseByFileName(ctx, s.DB, fileName)
}

func (s *MetadataStore) ListAllDatabases(ctx context.Context) ([]domain.Database, error) {
	return ListAllDatabases(ctx, s.DB)
}

func (s *MetadataStore) ListOwnedDatabases(ctx context.Context, userID string) ([]domain.Database, error) {
	return ListOwnedDatabases(ctx, s.DB, userID)
}

func (s *MetadataStore) ListGrantedDatabases(ctx context.Context, userID string) ([]domain.Database, error) {
	return ListGrantedDatabases(ctx, s.DB, userID)
}

func (s *MetadataStore) RegisterDatabase(ctx context.Context, ownerID, displayName, fileName string) (int64, error) {
	return RegisterDatabase(ctx, s.DB, ownerID, displayName, fileName)
}

func (s *MetadataStore) SetDatabaseOwner(ctx context.Context, databaseID int64, ownerID string) error {
	return SetDatabaseOwner(ctx, s.DB, databaseID, ownerID)
}

func (s *MetadataStore) FindPermission(ctx context.Context, databaseID int64, granteeID string) (*domain.Permission, error) {
	return FindPermission(ctx, s.DB, databaseID, granteeID)
}

func (s *MetadataStore) ListPermissions(ctx context.Context, databaseID int64) ([]domain.Permission, error) {
	return ListPermissions(ctx, s.DB, databaseID)
}

func (s *MetadataStore) UpsertPermission(ctx context.Context, databaseID int64, granteeID string, level domain.Level, grantedBy string) error {
	return UpsertPermission(ctx, s.DB, databaseID, granteeID, level, grantedBy)
}

func (s *MetadataStore) UpdatePermissionLevel(ctx context.Context, databaseID int64, granteeID string, level domain.Level) error {
	return UpdatePermissionLevel(ctx, s.DB, databaseID, granteeID, level)
}

func (s *MetadataStore) DeletePermission(ctx context.Context, databaseID int64, granteeID string) error {
	return DeletePermission(ctx, s.DB, databaseID, granteeID)
}

// TransferOwnership reassigns the owner and drops any grant the new owner
// held, in one transaction.
func (s *MetadataStore) TransferOwnership(ctx context.Context, databaseID int64, newOwnerID string) error {
	return WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := SetDatabaseOwner(ctx, tx, databaseID, newOwnerID); err != nil {
			return err
		}
		if err := DeletePermission(ctx, tx, databaseID, newOwnerID); err != nil && !errors.Is(err, ErrPermissionNotFound) {
			return err
		}
		return nil
	})
}
