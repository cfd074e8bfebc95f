// Package service composes the metadata store, the tenant file gateway and
// the permission resolver into the operations the HTTP layer exposes.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/Annany2002/sqlitecult/internal/auth"
	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
	"github.com/Annany2002/sqlitecult/internal/logger"
	"github.com/Annany2002/sqlitecult/internal/permission"
	"github.com/Annany2002/sqlitecult/internal/storage"
)

var customLog = logger.NewLogger()

var (
	ErrAPIDisabled   = fmt.Errorf("%w: API access is disabled for this database", core.ErrPermissionDenied)
	ErrNotRegistered = fmt.Errorf("%w: database has no owner record; claim it first", core.ErrInvalidInput)
)

// Handle is a database the caller has been authorized for, with the level
// they hold on it.
type Handle struct {
	*domain.Database
	Level domain.Level
}

// DatabaseSummary is one entry of a database listing.
type DatabaseSummary struct {
	domain.Database
	Registered bool          `json:"registered"`
	Level      *domain.Level `json:"level,omitempty"`
	TableCount int           `json:"table_count"`
	SizeKB     float64       `json:"size_kb"`
}

// DatabaseDetail is a database with its tables and, for controllers, its
// API settings.
type DatabaseDetail struct {
	Database    *domain.Database      `json:"database"`
	Level       domain.Level          `json:"level"`
	Tables      []domain.TableSummary `json:"tables"`
	SizeKB      float64               `json:"size_kb"`
	APISettings *domain.ApiCredential `json:"api_settings,omitempty"`
}

// DatabaseService manages the lifecycle of tenant databases.
type DatabaseService struct {
	DB       *sql.DB
	Store    *storage.MetadataStore
	Gateway  *storage.Gateway
	Resolver *permission.Resolver
	Tokens   *auth.APITokenManager
}

// NewDatabaseService wires a service over the metadata pool and gateway.
func NewDatabaseService(db *sql.DB, gateway *storage.Gateway, tokens *auth.APITokenManager) *DatabaseService {
	store := storage.NewMetadataStore(db)
	return &DatabaseService{
		DB:       db,
		Store:    store,
		Gateway:  gateway,
		Resolver: permission.NewResolver(store, gateway),
		Tokens:   tokens,
	}
}

// Open resolves name and checks that user holds at least required on it.
// Successful opens of registered databases are recorded as accesses.
func (s *DatabaseService) Open(ctx context.Context, user *domain.User, name string, required domain.Level) (*Handle, error) {
	db, err := s.Resolver.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	level, err := s.Resolver.Check(ctx, user, db, required)
	if err != nil {
		return nil, err
	}
	if !s.Gateway.Exists(db.FileName) {
		return nil, fmt.Errorf("%w: %s", storage.ErrDatabaseFileMissing, name)
	}
	if permission.IsRegistered(db) {
		if err := storage.TouchDatabaseAccess(ctx, s.DB, user.UserID, db.DatabaseID); err != nil {
			customLog.Warnf("Service: Failed to record access of %s to '%s': %v", user.UserID, name, err)
		}
	}
	return &Handle{Database: db, Level: level}, nil
}

// List returns what user can reach, annotated with table count and size.
// The level is left out for unrestricted users.
func (s *DatabaseService) List(ctx context.Context, user *domain.User) ([]DatabaseSummary, error) {
	access, err := s.Resolver.Accessible(ctx, user)
	if err != nil {
		return nil, err
	}
	list := make([]DatabaseSummary, 0, len(access.Databases))
	for _, db := range access.Databases {
		summary := DatabaseSummary{
			Database:   db.Database,
			Registered: permission.IsRegistered(&db.Database),
			SizeKB:     sizeKB(s.Gateway.Size(db.FileName)),
		}
		if !access.Unrestricted {
			level := db.Level
			summary.Level = &level
		}
		names, err := s.Gateway.TableNames(ctx, db.FileName)
		if err != nil {
			customLog.Warnf("Service: Failed to count tables of '%s': %v", db.DisplayName, err)
		}
		summary.TableCount = len(names)
		list = append(list, summary)
	}
	return list, nil
}

func sizeKB(bytes int64) float64 {
	return float64(bytes*100/1024) / 100
}

// Create registers name for owner and creates its file. The record is
// rolled back when the file cannot be created, and the file is removed when
// the record cannot be committed.
func (s *DatabaseService) Create(ctx context.Context, owner *domain.User, name string) (*domain.Database, error) {
	if err := s.Resolver.CheckNameAvailable(ctx, name); err != nil {
		return nil, err
	}
	fileName := storage.NewFileName()
	fileCreated := false
	var id int64
	err := storage.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		if id, err = storage.RegisterDatabase(ctx, tx, owner.UserID, name, fileName); err != nil {
			return err
		}
		if err := s.Gateway.Create(ctx, fileName); err != nil {
			return err
		}
		fileCreated = true
		return nil
	})
	if err != nil {
		if fileCreated {
			if rmErr := s.Gateway.Remove(fileName); rmErr != nil {
				customLog.Warnf("Service: Failed to clean up file of '%s': %v", name, rmErr)
			}
		}
		if errors.Is(err, storage.ErrDatabaseExists) {
			return nil, fmt.Errorf("%w: %s", permission.ErrNameTaken, name)
		}
		return nil, err
	}
	customLog.Printf("Service: Created database '%s' (id %d) for %s", name, id, owner.Username)
	return storage.FindDatabaseByID(ctx, s.DB, id)
}

// Delete removes the file and then the record of name. Grants, the API
// credential, access rows and charts cascade; the query log is kept.
func (s *DatabaseService) Delete(ctx context.Context, user *domain.User, name string) error {
	db, err := s.Resolver.Lookup(ctx, name)
	if err != nil {
		return err
	}
	if !permission.CanManage(user, db) {
		return permission.ErrNotManager
	}
	if err := s.Gateway.Remove(db.FileName); err != nil {
		return err
	}
	if permission.IsRegistered(db) {
		if err := storage.DeleteDatabaseRegistration(ctx, s.DB, db.DatabaseID); err != nil {
			return err
		}
	}
	customLog.Printf("Service: %s deleted database '%s'", user.Username, name)
	return nil
}

// Detail returns the tables of name with columns and row counts.
func (s *DatabaseService) Detail(ctx context.Context, user *domain.User, name string) (*DatabaseDetail, error) {
	h, err := s.Open(ctx, user, name, domain.Read)
	if err != nil {
		return nil, err
	}
	tables, err := s.Gateway.ListTables(ctx, h.FileName)
	if err != nil {
		return nil, err
	}
	detail := &DatabaseDetail{
		Database: h.Database,
		Level:    h.Level,
		Tables:   tables,
		SizeKB:   sizeKB(s.Gateway.Size(h.FileName)),
	}
	if permission.IsRegistered(h.Database) && permission.CanControl(user, h.Database) {
		if detail.APISettings, err = s.credential(ctx, h.DatabaseID); err != nil {
			return nil, err
		}
	}
	return detail, nil
}

// credential returns the stored credential or a disabled placeholder.
func (s *DatabaseService) credential(ctx context.Context, databaseID int64) (*domain.ApiCredential, error) {
	cred, err := storage.FindAPICredential(ctx, s.DB, databaseID)
	if errors.Is(err, storage.ErrAPIKeyNotFound) {
		return &domain.ApiCredential{DatabaseID: databaseID, Permissions: []domain.Capability{domain.CapRead}}, nil
	}
	return cred, err
}

func (s *DatabaseService) controlled(ctx context.Context, user *domain.User, name string) (*domain.Database, error) {
	db, err := s.Resolver.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if !permission.CanControl(user, db) {
		return nil, permission.ErrNotManager
	}
	if !permission.IsRegistered(db) {
		return nil, ErrNotRegistered
	}
	return db, nil
}

// APISettings returns the API credential of name. Only the owner or a
// superuser may read it.
func (s *DatabaseService) APISettings(ctx context.Context, user *domain.User, name string) (*domain.ApiCredential, error) {
	db, err := s.controlled(ctx, user, name)
	if err != nil {
		return nil, err
	}
	return s.credential(ctx, db.DatabaseID)
}

// UpdateAPISettings enables or disables API access and sets the capability
// list. Enabling a disabled credential rotates its signing key, so tokens
// issued before it was disabled stay invalid. Every enabled update issues a
// fresh token carrying the new capabilities.
func (s *DatabaseService) UpdateAPISettings(ctx context.Context, user *domain.User, name string, enabled bool, perms []domain.Capability) (*domain.ApiCredential, error) {
	db, err := s.controlled(ctx, user, name)
	if err != nil {
		return nil, err
	}
	cred, err := s.credential(ctx, db.DatabaseID)
	if err != nil {
		return nil, err
	}
	if perms != nil {
		cred.Permissions = perms
	}
	if cred.SigningKey == "" || (enabled && !cred.Enabled) {
		if cred.SigningKey, err = auth.NewSigningKey(); err != nil {
			return nil, err
		}
	}
	cred.Enabled = enabled
	if enabled {
		if err := s.issue(cred, db.DisplayName); err != nil {
			return nil, err
		}
	}
	if err := storage.SaveAPICredential(ctx, s.DB, cred); err != nil {
		return nil, err
	}
	customLog.Printf("Service: %s set API access of '%s' to enabled=%t permissions=%v", user.Username, name, enabled, cred.Permissions)
	return cred, nil
}

// RegenerateToken rotates the signing key of an enabled credential and
// issues a new token. Every earlier token stops validating.
func (s *DatabaseService) RegenerateToken(ctx context.Context, user *domain.User, name string) (*domain.ApiCredential, error) {
	db, err := s.controlled(ctx, user, name)
	if err != nil {
		return nil, err
	}
	cred, err := s.credential(ctx, db.DatabaseID)
	if err != nil {
		return nil, err
	}
	if !cred.Enabled {
		return nil, core.InvalidInputf("API access is disabled for %s", name)
	}
	if cred.SigningKey, err = auth.NewSigningKey(); err != nil {
		return nil, err
	}
	if err := s.issue(cred, db.DisplayName); err != nil {
		return nil, err
	}
	if err := storage.SaveAPICredential(ctx, s.DB, cred); err != nil {
		return nil, err
	}
	customLog.Printf("Service: %s regenerated the API token of '%s'", user.Username, name)
	return cred, nil
}

func (s *DatabaseService) issue(cred *domain.ApiCredential, databaseName string) error {
	token, expiresAt, err := s.Tokens.Issue(cred, databaseName, cred.Permissions, 0)
	if err != nil {
		return err
	}
	cred.Token = token
	cred.ExpiresAt = &expiresAt
	return nil
}

// AuthenticateAPIToken resolves the database addressed by the public API and
// validates token against its credential. The returned claims carry only the
// capabilities both the token and the current credential allow.
func (s *DatabaseService) AuthenticateAPIToken(ctx context.Context, name, token string) (*domain.Database, *auth.APITokenClaims, error) {
	if err := core.ValidateIdentifier("database", name); err != nil {
		return nil, nil, err
	}
	db, err := storage.FindDatabaseByName(ctx, s.DB, name)
	if err != nil {
		return nil, nil, err
	}
	cred, err := storage.FindAPICredential(ctx, s.DB, db.DatabaseID)
	if errors.Is(err, storage.ErrAPIKeyNotFound) {
		return nil, nil, ErrAPIDisabled
	}
	if err != nil {
		return nil, nil, err
	}
	if !cred.Enabled {
		return nil, nil, ErrAPIDisabled
	}
	claims, err := s.Tokens.Validate(token, cred, db.DatabaseID)
	if err != nil {
		return nil, nil, err
	}
	effective := make([]domain.Capability, 0, len(claims.Permissions))
	for _, c := range claims.Permissions {
		if slices.Contains(cred.Permissions, c) {
			effective = append(effective, c)
		}
	}
	claims.Permissions = effective
	if !s.Gateway.Exists(db.FileName) {
		return nil, nil, fmt.Errorf("%w: %s", storage.ErrDatabaseFileMissing, name)
	}
	return db, claims, nil
}
