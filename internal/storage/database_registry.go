package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Annany2002/sqlitecult/internal/domain"
)

// --- Database Registration Operations ---

const databaseColumns = `d.database_id, COALESCE(d.owner_id, ''), COALESCE(u.username, ''), d.display_name, d.file_name, d.created_at`

const databaseFrom = ` FROM databases d LEFT JOIN users u ON u.user_id = d.owner_id`

func scanDatabase(row interface{ Scan(...any) error }) (*domain.Database, error) {
	var d domain.Database
	if err := row.Scan(&d.DatabaseID, &d.OwnerID, &d.OwnerName, &d.DisplayName, &d.FileName, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func queryDatabases(ctx context.Context, db DBTX, query string, args ...any) ([]domain.Database, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		customLog.Warnf("Storage: Error listing databases: %v", err)
		return nil, fmt.Errorf("database error listing databases: %w", err)
	}
	defer rows.Close()

	list := make([]domain.Database, 0)
	for rows.Next() {
		d, err := scanDatabase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed processing database list: %w", err)
		}
		list = append(list, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading database list: %w", err)
	}
	return list, nil
}

// RegisterDatabase inserts a new database record and returns its id. An
// empty ownerID registers an ownerless database.
func RegisterDatabase(ctx context.Context, db DBTX, ownerID, displayName, fileName string) (int64, error) {
	result, err := db.ExecContext(ctx, `INSERT INTO databases (owner_id, display_name, file_name) VALUES (?, ?, ?)`,
		nullIfEmpty(ownerID), displayName, fileName)
	if err != nil {
		if isUniqueViolation(err, "") {
			customLog.Warnf("Storage: Constraint violation registering DB '%s': %v", displayName, err)
			return 0, ErrDatabaseExists
		}
		customLog.Warnf("Storage: Failed to insert database record for '%s': %v", displayName, err)
		return 0, fmt.Errorf("database error registering database: %w", err)
	}
	return result.LastInsertId()
}

// FindDatabaseByName looks up a database by its display name.
func FindDatabaseByName(ctx context.Context, db DBTX, name string) (*domain.Database, error) {
	d, err := scanDatabase(db.QueryRowContext(ctx, `SELECT `+databaseColumns+databaseFrom+` WHERE d.display_name = ?`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDatabaseNotFound
		}
		customLog.Warnf("Storage: Error looking up database '%s': %v", name, err)
		return nil, fmt.Errorf("database error finding database: %w", err)
	}
	return d, nil
}

// FindDatabaseByID looks up a database by id.
func FindDatabaseByID(ctx context.Context, db DBTX, id int64) (*domain.Database, error) {
	d, err := scanDatabase(db.QueryRowContext(ctx, `SELECT `+databaseColumns+databaseFrom+` WHERE d.database_id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDatabaseNotFound
		}
		return nil, fmt.Errorf("database error finding database: %w", err)
	}
	return d, nil
}

// FindDatabaseByFileName looks up the record that owns a physical file.
func FindDatabaseByFileName(ctx context.Context, db DBTX, fileName string) (*domain.Database, error) {
	d, err := scanDatabase(db.QueryRowContext(ctx, `SELECT `+databaseColumns+databaseFrom+` WHERE d.file_name = ?`, fileName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDatabaseNotFound
		}
		return nil, fmt.Errorf("database error finding database: %w", err)
	}
	return d, nil
}

// ListAllDatabases returns every registered database.
func ListAllDatabases(ctx context.Context, db DBTX) ([]domain.Database, error) {
	return queryDatabases(ctx, db, `SELECT `+databaseColumns+databaseFrom+` ORDER BY d.display_name`)
}

// ListOwnedDatabases returns databases owned by userID.
func ListOwnedDatabases(ctx context.Context, db DBTX, userID string) ([]domain.Database, error) {
	return queryDatabases(ctx, db, `SELECT `+databaseColumns+databaseFrom+` WHERE d.owner_id = ? ORDER BY d.display_name`, userID)
}

// ListGrantedDatabases returns databases on which userID holds a grant.
func ListGrantedDatabases(ctx context.Context, db DBTX, userID string) ([]domain.Database, error) {
	return queryDatabases(ctx, db, `SELECT `+databaseColumns+databaseFrom+`
		JOIN database_permissions p ON p.database_id = d.database_id
		WHERE p.grantee_id = ? ORDER BY d.display_name`, userID)
}

// DeleteDatabaseRegistration removes the database entry. Permissions, the
// api credential, access rows and charts cascade.
func DeleteDatabaseRegistration(ctx context.Context, db DBTX, databaseID int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM databases WHERE database_id = ?`, databaseID)
	if err != nil {
		customLog.Warnf("Storage: Error deleting registration %d: %v", databaseID, err)
		return fmt.Errorf("database error deleting registration: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed confirming registration deletion: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDatabaseNotFound
	}
	return nil
}

// SetDatabaseOwner reassigns ownership.
func SetDatabaseOwner(ctx context.Context, db DBTX, databaseID int64, ownerID string) error {
	result, err := db.ExecContext(ctx, `UPDATE databases SET owner_id = ? WHERE database_id = ?`, ownerID, databaseID)
	if err != nil {
		return fmt.Errorf("database error updating owner: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrDatabaseNotFound
	}
	return nil
}

// --- Permission Operations ---

const permissionColumns = `p.id, p.database_id, p.grantee_id, COALESCE(u.username, ''), p.level, COALESCE(p.granted_by, ''), p.granted_at`

func scanPermission(row interface{ Scan(...any) error }) (*domain.Permission, error) {
	var p domain.Permission
	var level string
	if err := row.Scan(&p.ID, &p.DatabaseID, &p.GranteeID, &p.Grantee, &level, &p.GrantedBy, &p.GrantedAt); err != nil {
		return nil, err
	}
	parsed, err := domain.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	p.Level = parsed
	return &p, nil
}

// UpsertPermission creates or updates the single grant held by grantee on a database.
func UpsertPermission(ctx context.Context, db DBTX, databaseID int64, granteeID string, level domain.Level, grantedBy string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO database_permissions (database_id, grantee_id, level, granted_by) VALUES (?, ?, ?, ?)
		ON CONFLICT (database_id, grantee_id) DO UPDATE SET level = excluded.level, granted_by = excluded.granted_by, granted_at = CURRENT_TIMESTAMP`,
		databaseID, granteeID, level.String(), nullIfEmpty(grantedBy))
	if err != nil {
		customLog.Warnf("Storage: Failed to store permission for %s on %d: %v", granteeID, databaseID, err)
		return fmt.Errorf("database error storing permission: %w", err)
	}
	return nil
}

// UpdatePermissionLevel changes an existing grant in place.
func UpdatePermissionLevel(ctx context.Context, db DBTX, databaseID int64, granteeID string, level domain.Level) error {
	result, err := db.ExecContext(ctx, `UPDATE database_permissions SET level = ? WHERE database_id = ? AND grantee_id = ?`,
		level.String(), databaseID, granteeID)
	if err != nil {
		return fmt.Errorf("database error updating permission: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrPermissionNotFound
	}
	return nil
}

// DeletePermission revokes a grant.
func DeletePermission(ctx context.Context, db DBTX, databaseID int64, granteeID string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM database_permissions WHERE database_id = ? AND grantee_id = ?`, databaseID, granteeID)
	if err != nil {
		return fmt.Errorf("database error deleting permission: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrPermissionNotFound
	}
	return nil
}

// FindPermission returns the grant held by granteeID on a database.
func FindPermission(ctx context.Context, db DBTX, databaseID int64, granteeID string) (*domain.Permission, error) {
	p, err := scanPermission(db.QueryRowContext(ctx, `SELECT `+permissionColumns+`
		FROM database_permissions p LEFT JOIN users u ON u.user_id = p.grantee_id
		WHERE p.database_id = ? AND p.grantee_id = ?`, databaseID, granteeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPermissionNotFound
		}
		return nil, fmt.Errorf("database error finding permission: %w", err)
	}
	return p, nil
}

// ListPermissions returns all grants on a database.
func ListPermissions(ctx context.Context, db DBTX, databaseID int64) ([]domain.Permission, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+permissionColumns+`
		FROM database_permissions p LEFT JOIN users u ON u.user_id = p.grantee_id
		WHERE p.database_id = ? ORDER BY u.username`, databaseID)
	if err != nil {
		return nil, fmt.Errorf("database error listing permissions: %w", err)
	}
	defer rows.Close()

	perms := make([]domain.Permission, 0)
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed processing permission list: %w", err)
		}
		perms = append(perms, *p)
	}
	return perms, rows.Err()
}

// --- API Credential Operations ---

func joinCapabilities(caps []domain.Capability) string {
	parts := make([]string, len(caps))
	for i, c := range caps {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func splitCapabilities(s string) []domain.Capability {
	caps := make([]domain.Capability, 0, 4)
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			caps = append(caps, domain.Capability(part))
		}
	}
	return caps
}

// FindAPICredential returns the credential of a database.
func FindAPICredential(ctx context.Context, db DBTX, databaseID int64) (*domain.ApiCredential, error) {
	var cred domain.ApiCredential
	var perms string
	var expires sql.NullTime
	err := db.QueryRowContext(ctx, `SELECT database_id, enabled, signing_key, permissions, token, expires_at, updated_at
		FROM api_credentials WHERE database_id = ?`, databaseID).
		Scan(&cred.DatabaseID, &cred.Enabled, &cred.SigningKey, &perms, &cred.Token, &expires, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		customLog.Warnf("Storage: Error finding api credential for database %d: %v", databaseID, err)
		return nil, fmt.Errorf("database error finding api credential: %w", err)
	}
	cred.Permissions = splitCapabilities(perms)
	if expires.Valid {
		t := expires.Time
		cred.ExpiresAt = &t
	}
	return &cred, nil
}

// SaveAPICredential inserts or replaces the credential of a database.
func SaveAPICredential(ctx context.Context, db DBTX, cred *domain.ApiCredential) error {
	var expires any
	if cred.ExpiresAt != nil {
		expires = cred.ExpiresAt.UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO api_credentials (database_id, enabled, signing_key, permissions, token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (database_id) DO UPDATE SET enabled = excluded.enabled, signing_key = excluded.signing_key,
			permissions = excluded.permissions, token = excluded.token, expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		cred.DatabaseID, cred.Enabled, cred.SigningKey, joinCapabilities(cred.Permissions), cred.Token, expires, time.Now().UTC())
	if err != nil {
		customLog.Warnf("Storage: Failed to store api credential for database %d: %v", cred.DatabaseID, err)
		return fmt.Errorf("database error storing api credential: %w", err)
	}
	return nil
}

// --- Access Tracking ---

// TouchDatabaseAccess records that userID opened a database.
func TouchDatabaseAccess(ctx context.Context, db DBTX, userID string, databaseID int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO database_access (user_id, database_id) VALUES (?, ?)
		ON CONFLICT (user_id, database_id) DO UPDATE SET last_accessed = CURRENT_TIMESTAMP`, userID, databaseID)
	if err != nil {
		return fmt.Errorf("database error recording access: %w", err)
	}
	return nil
}

// RecentDatabaseAccess returns the ids of databases userID opened most recently.
func RecentDatabaseAccess(ctx context.Context, db DBTX, userID string, limit int) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT database_id FROM database_access WHERE user_id = ?
		ORDER BY last_accessed DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("database error listing access: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
