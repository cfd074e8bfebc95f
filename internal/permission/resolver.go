// Package permission decides what a user may do with a tenant database.
package permission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
	"github.com/Annany2002/sqlitecult/internal/logger"
)

var customLog = logger.NewLogger()

var (
	ErrAccessDenied     = fmt.Errorf("%w: insufficient access to this database", core.ErrPermissionDenied)
	ErrNotManager       = fmt.Errorf("%w: only the database owner or an administrator can do this", core.ErrPermissionDenied)
	ErrNameTaken        = fmt.Errorf("%w: a database with this name already exists", core.ErrConflict)
	ErrGrantToOwner     = fmt.Errorf("%w: the owner already has full access", core.ErrInvalidInput)
	ErrAlreadyOwned     = fmt.Errorf("%w: database already has an owner", core.ErrConflict)
	ErrDatabaseNotFound = fmt.Errorf("database %w", core.ErrNotFound)
)

// legacyExt is the extension of files named after their database.
const legacyExt = ".db"

// Store is the metadata the resolver reads and writes.
type Store interface {
	FindDatabaseByName(ctx context.Context, name string) (*domain.Database, error)
	FindDatabaseByFileName(ctx context.Context, fileName string) (*domain.Database, error)
	ListAllDatabases(ctx context.Context) ([]domain.Database, error)
	ListOwnedDatabases(ctx context.Context, userID string) ([]domain.Database, error)
	ListGrantedDatabases(ctx context.Context, userID string) ([]domain.Database, error)
	RegisterDatabase(ctx context.Context, ownerID, displayName, fileName string) (int64, error)
	SetDatabaseOwner(ctx context.Context, databaseID int64, ownerID string) error
	FindPermission(ctx context.Context, databaseID int64, granteeID string) (*domain.Permission, error)
	ListPermissions(ctx context.Context, databaseID int64) ([]domain.Permission, error)
	UpsertPermission(ctx context.Context, databaseID int64, granteeID string, level domain.Level, grantedBy string) error
	UpdatePermissionLevel(ctx context.Context, databaseID int64, granteeID string, level domain.Level) error
	DeletePermission(ctx context.Context, databaseID int64, granteeID string) error
	TransferOwnership(ctx context.Context, databaseID int64, newOwnerID string) error
}

// Files reports which tenant files exist on disk.
type Files interface {
	Exists(fileName string) bool
	ListFiles() ([]string, error)
}

// Resolver computes access levels from ownership, grants and the user's
// global role. It keeps no state between calls.
type Resolver struct {
	store Store
	files Files
}

// NewResolver returns a resolver over store and files.
func NewResolver(store Store, files Files) *Resolver {
	return &Resolver{store: store, files: files}
}

// IsRegistered reports whether db has a metadata record. Legacy files found
// on disk without one have a zero id.
func IsRegistered(db *domain.Database) bool {
	return db.DatabaseID != 0
}

// Lookup finds a database by display name. A legacy file named after the
// database is returned unregistered when no record exists.
func (r *Resolver) Lookup(ctx context.Context, name string) (*domain.Database, error) {
	if err := core.ValidateIdentifier("database", name); err != nil {
		return nil, err
	}
	db, err := r.store.FindDatabaseByName(ctx, name)
	if err == nil {
		return db, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	legacy := name + legacyExt
	if r.files.Exists(legacy) {
		if _, err := r.store.FindDatabaseByFileName(ctx, legacy); errors.Is(err, core.ErrNotFound) {
			return &domain.Database{DisplayName: name, FileName: legacy}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, name)
}

// Resolve returns the level user holds on db. Superusers and staff hold
// Admin everywhere, the owner holds Admin, anyone else holds their grant.
func (r *Resolver) Resolve(ctx context.Context, user *domain.User, db *domain.Database) (domain.Level, error) {
	if user == nil || db == nil {
		return domain.NoAccess, nil
	}
	if user.IsPrivileged() {
		return domain.Admin, nil
	}
	if !IsRegistered(db) {
		return domain.NoAccess, nil
	}
	if db.OwnerID != "" && db.OwnerID == user.UserID {
		return domain.Admin, nil
	}
	perm, err := r.store.FindPermission(ctx, db.DatabaseID, user.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return domain.NoAccess, nil
		}
		return domain.NoAccess, err
	}
	return perm.Level, nil
}

// Check resolves the level and fails with ErrAccessDenied when it does not
// reach required.
func (r *Resolver) Check(ctx context.Context, user *domain.User, db *domain.Database, required domain.Level) (domain.Level, error) {
	level, err := r.Resolve(ctx, user, db)
	if err != nil {
		return domain.NoAccess, err
	}
	if !level.Allows(required) {
		return level, fmt.Errorf("%w: %s access required", ErrAccessDenied, required)
	}
	return level, nil
}

// CanManage reports whether user may delete db. Owners, superusers and staff can.
func CanManage(user *domain.User, db *domain.Database) bool {
	if user == nil || db == nil {
		return false
	}
	return user.IsPrivileged() || (db.OwnerID != "" && db.OwnerID == user.UserID)
}

// CanControl reports whether user may transfer db or change its API
// credential. Only the owner or a superuser can.
func CanControl(user *domain.User, db *domain.Database) bool {
	if user == nil || db == nil {
		return false
	}
	return user.IsSuperuser || (db.OwnerID != "" && db.OwnerID == user.UserID)
}

// AccessibleDatabase is a database together with the caller's level on it.
type AccessibleDatabase struct {
	domain.Database
	Level domain.Level `json:"level"`
}

// Access lists what a user can reach. Unrestricted is set for superusers
// and staff, who see every database.
type Access struct {
	Databases    []AccessibleDatabase
	Unrestricted bool
}

// Accessible returns the union of owned and granted databases, restricted to
// those whose file still exists, sorted by name.
func (r *Resolver) Accessible(ctx context.Context, user *domain.User) (*Access, error) {
	access := &Access{Databases: make([]AccessibleDatabase, 0)}
	if user == nil {
		return access, nil
	}
	seen := make(map[int64]bool)
	add := func(db domain.Database, level domain.Level) {
		if seen[db.DatabaseID] || !r.files.Exists(db.FileName) {
			return
		}
		seen[db.DatabaseID] = true
		access.Databases = append(access.Databases, AccessibleDatabase{Database: db, Level: level})
	}

	if user.IsPrivileged() {
		access.Unrestricted = true
		all, err := r.store.ListAllDatabases(ctx)
		if err != nil {
			return nil, err
		}
		for _, db := range all {
			add(db, domain.Admin)
		}
		legacy, err := r.legacyFiles(ctx)
		if err != nil {
			return nil, err
		}
		access.Databases = append(access.Databases, legacy...)
	} else {
		owned, err := r.store.ListOwnedDatabases(ctx, user.UserID)
		if err != nil {
			return nil, err
		}
		for _, db := range owned {
			add(db, domain.Admin)
		}
		granted, err := r.store.ListGrantedDatabases(ctx, user.UserID)
		if err != nil {
			return nil, err
		}
		for _, db := range granted {
			if seen[db.DatabaseID] {
				continue
			}
			level, err := r.Resolve(ctx, user, &db)
			if err != nil {
				return nil, err
			}
			if level > domain.NoAccess {
				add(db, level)
			}
		}
	}

	sort.Slice(access.Databases, func(i, j int) bool {
		return access.Databases[i].DisplayName < access.Databases[j].DisplayName
	})
	return access, nil
}

// legacyFiles returns files named after a valid database name that have no
// metadata record.
func (r *Resolver) legacyFiles(ctx context.Context) ([]AccessibleDatabase, error) {
	files, err := r.files.ListFiles()
	if err != nil {
		return nil, err
	}
	legacy := make([]AccessibleDatabase, 0)
	for _, file := range files {
		name := strings.TrimSuffix(file, legacyExt)
		if !core.IsValidIdentifier(name) {
			continue
		}
		_, err := r.store.FindDatabaseByFileName(ctx, file)
		if err == nil {
			continue
		}
		if !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		legacy = append(legacy, AccessibleDatabase{
			Database: domain.Database{DisplayName: name, FileName: file},
			Level:    domain.Admin,
		})
	}
	return legacy, nil
}

// CheckNameAvailable fails with ErrNameTaken when a record or a legacy file
// already uses name. Names are global so database URLs are unambiguous.
func (r *Resolver) CheckNameAvailable(ctx context.Context, name string) error {
	if err := core.ValidateIdentifier("database", name); err != nil {
		return err
	}
	_, err := r.store.FindDatabaseByName(ctx, name)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return err
	}
	if r.files.Exists(name + legacyExt) {
		return fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	return nil
}

func (r *Resolver) requireRegistered(db *domain.Database) error {
	if !IsRegistered(db) {
		return core.InvalidInputf("database %s has no owner record; claim it first", db.DisplayName)
	}
	return nil
}

// Grants lists the grants on db. Admin level is required.
func (r *Resolver) Grants(ctx context.Context, actor *domain.User, db *domain.Database) ([]domain.Permission, error) {
	if _, err := r.Check(ctx, actor, db, domain.Admin); err != nil {
		return nil, err
	}
	if !IsRegistered(db) {
		return []domain.Permission{}, nil
	}
	return r.store.ListPermissions(ctx, db.DatabaseID)
}

// Grant gives grantee level on db, replacing any earlier grant.
func (r *Resolver) Grant(ctx context.Context, actor *domain.User, db *domain.Database, grantee *domain.User, level domain.Level) error {
	if _, err := r.Check(ctx, actor, db, domain.Admin); err != nil {
		return err
	}
	if err := r.requireRegistered(db); err != nil {
		return err
	}
	if level < domain.Read || level > domain.Admin {
		return core.InvalidInputf("invalid permission level %q", level)
	}
	if grantee.UserID == db.OwnerID {
		return ErrGrantToOwner
	}
	if err := r.store.UpsertPermission(ctx, db.DatabaseID, grantee.UserID, level, actor.UserID); err != nil {
		return err
	}
	customLog.Printf("Permission: %s granted %s on '%s' to %s", actor.Username, level, db.DisplayName, grantee.Username)
	return nil
}

// UpdateGrant changes the level of an existing grant.
func (r *Resolver) UpdateGrant(ctx context.Context, actor *domain.User, db *domain.Database, granteeID string, level domain.Level) error {
	if _, err := r.Check(ctx, actor, db, domain.Admin); err != nil {
		return err
	}
	if err := r.requireRegistered(db); err != nil {
		return err
	}
	if level < domain.Read || level > domain.Admin {
		return core.InvalidInputf("invalid permission level %q", level)
	}
	return r.store.UpdatePermissionLevel(ctx, db.DatabaseID, granteeID, level)
}

// Revoke removes the grant held by granteeID.
func (r *Resolver) Revoke(ctx context.Context, actor *domain.User, db *domain.Database, granteeID string) error {
	if _, err := r.Check(ctx, actor, db, domain.Admin); err != nil {
		return err
	}
	if err := r.requireRegistered(db); err != nil {
		return err
	}
	if err := r.store.DeletePermission(ctx, db.DatabaseID, granteeID); err != nil {
		return err
	}
	customLog.Printf("Permission: %s revoked access of %s on '%s'", actor.Username, granteeID, db.DisplayName)
	return nil
}

// TransferOwnership makes newOwner the owner of db. Any grant newOwner held
// is dropped in the same transaction.
func (r *Resolver) TransferOwnership(ctx context.Context, actor *domain.User, db *domain.Database, newOwner *domain.User) error {
	if !CanControl(actor, db) {
		return ErrNotManager
	}
	if err := r.requireRegistered(db); err != nil {
		return err
	}
	if newOwner.UserID == db.OwnerID {
		return core.InvalidInputf("%s already owns %s", newOwner.Username, db.DisplayName)
	}
	if err := r.store.TransferOwnership(ctx, db.DatabaseID, newOwner.UserID); err != nil {
		return err
	}
	customLog.Printf("Permission: ownership of '%s' transferred to %s by %s", db.DisplayName, newOwner.Username, actor.Username)
	return nil
}

// ClaimLegacy makes a superuser or staff member the owner of a database that
// has none: a legacy file without a record, or a record whose owner was
// deleted.
func (r *Resolver) ClaimLegacy(ctx context.Context, actor *domain.User, db *domain.Database) (*domain.Database, error) {
	if !actor.IsPrivileged() {
		return nil, fmt.Errorf("%w: only administrators can claim databases", core.ErrPermissionDenied)
	}
	if IsRegistered(db) {
		if db.OwnerID != "" {
			return nil, ErrAlreadyOwned
		}
		if err := r.store.SetDatabaseOwner(ctx, db.DatabaseID, actor.UserID); err != nil {
			return nil, err
		}
	} else if _, err := r.store.RegisterDatabase(ctx, actor.UserID, db.DisplayName, db.FileName); err != nil {
		return nil, err
	}
	customLog.Printf("Permission: %s claimed database '%s'", actor.Username, db.DisplayName)
	return r.store.FindDatabaseByName(ctx, db.DisplayName)
}
