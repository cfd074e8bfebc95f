package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/sqlitecult/config"
	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
)

func newTestMetadataDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		MetadataDbDir:  t.TempDir(),
		MetadataDbFile: "test_metadata.db",
		BusyTimeout:    5 * time.Second,
	}
	db, err := ConnectMetadataDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, username string) *domain.User {
	t.Helper()
	user := &domain.User{
		UserID:       uuid.NewString(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
	}
	require.NoError(t, CreateUser(context.Background(), db, user))
	return user
}

func TestMigrationsAreIdempotent(t *testing.T) {
	cfg := &config.Config{MetadataDbDir: t.TempDir(), MetadataDbFile: "meta.db", BusyTimeout: time.Second}
	for i := 0; i < 2; i++ {
		db, err := ConnectMetadataDB(cfg)
		require.NoError(t, err)
		require.NoError(t, db.Close())
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	db := newTestMetadataDB(t)
	alice := createTestUser(t, db, "alice")

	err := CreateUser(ctx, db, &domain.User{UserID: uuid.NewString(), Username: "alice2", Email: alice.Email, PasswordHash: "x"})
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.ErrorIs(t, err, core.ErrConflict)
	err = CreateUser(ctx, db, &domain.User{UserID: uuid.NewString(), Username: "alice", Email: "other@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, ErrUsernameExists)

	found, err := FindUserByUsername(ctx, db, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.UserID, found.UserID)
	assert.False(t, found.IsPrivileged())

	require.NoError(t, SetUserPrivileges(ctx, db, alice.UserID, true, false))
	found, err = FindUserByUserId(ctx, db, alice.UserID)
	require.NoError(t, err)
	assert.True(t, found.IsSuperuser)

	_, err = FindUserByEmail(ctx, db, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDatabaseRegistryCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestMetadataDB(t)
	owner := createTestUser(t, db, "owner")
	reader := createTestUser(t, db, "reader")

	id, err := RegisterDatabase(ctx, db, owner.UserID, "sales", NewFileName())
	require.NoError(t, err)
	_, err = RegisterDatabase(ctx, db, reader.UserID, "sales", NewFileName())
	assert.ErrorIs(t, err, ErrDatabaseExists)

	require.NoError(t, UpsertPermission(ctx, db, id, reader.UserID, domain.Read, owner.UserID))
	require.NoError(t, UpsertPermission(ctx, db, id, reader.UserID, domain.Write, ""))
	perms, err := ListPermissions(ctx, db, id)
	require.NoError(t, err)
	require.Len(t, perms, 1, "one grant per grantee")
	assert.Equal(t, domain.Write, perms[0].Level)
	assert.Equal(t, "reader", perms[0].Grantee)

	granted, err := ListGrantedDatabases(ctx, db, reader.UserID)
	require.NoError(t, err)
	require.Len(t, granted, 1)
	assert.Equal(t, "owner", granted[0].OwnerName)

	require.NoError(t, SaveAPICredential(ctx, db, &domain.ApiCredential{
		DatabaseID: id, Enabled: true, SigningKey: "k", Permissions: []domain.Capability{domain.CapRead, domain.CapCreate},
	}))
	cred, err := FindAPICredential(ctx, db, id)
	require.NoError(t, err)
	assert.Equal(t, []domain.Capability{domain.CapRead, domain.CapCreate}, cred.Permissions)
	assert.Nil(t, cred.ExpiresAt)

	require.NoError(t, TouchDatabaseAccess(ctx, db, reader.UserID, id))
	require.NoError(t, TouchDatabaseAccess(ctx, db, reader.UserID, id))
	recent, err := RecentDatabaseAccess(ctx, db, reader.UserID, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, recent)

	require.NoError(t, AppendQueryLog(ctx, db, &domain.QueryLogEntry{UserID: reader.UserID, DatabaseName: "sales", Query: "SELECT 1", Success: true}))

	require.NoError(t, DeleteDatabaseRegistration(ctx, db, id))
	_, err = FindDatabaseByName(ctx, db, "sales")
	assert.ErrorIs(t, err, ErrDatabaseNotFound)
	_, err = FindPermission(ctx, db, id, reader.UserID)
	assert.ErrorIs(t, err, ErrPermissionNotFound)
	_, err = FindAPICredential(ctx, db, id)
	assert.ErrorIs(t, err, ErrAPIKeyNotFound)
	recent, err = RecentDatabaseAccess(ctx, db, reader.UserID, 5)
	require.NoError(t, err)
	assert.Empty(t, recent)

	history, err := ListQueryLog(ctx, db, reader.UserID, "sales", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1, "the audit trail outlives the database")

	assert.ErrorIs(t, DeleteDatabaseRegistration(ctx, db, id), ErrDatabaseNotFound)
}

func TestQueryLogIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	db := newTestMetadataDB(t)

	for i, q := range []string{"SELECT 1", "DROP TABLE x", "SELECT 2"} {
		entry := &domain.QueryLogEntry{UserID: "u1", DatabaseName: "db", Query: q, Success: i != 1}
		if i == 1 {
			entry.ErrorMessage = "no such table: x"
		}
		require.NoError(t, AppendQueryLog(ctx, db, entry))
	}
	require.NoError(t, AppendQueryLog(ctx, db, &domain.QueryLogEntry{UserID: "u1", DatabaseName: "other", Query: "SELECT 3", Success: true}))

	entries, err := ListQueryLog(ctx, db, "u1", "db", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "SELECT 2", entries[0].Query, "newest first")
	assert.False(t, entries[1].Success)
	assert.Equal(t, "no such table: x", entries[1].ErrorMessage)

	all, err := ListQueryLog(ctx, db, "u1", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = db.ExecContext(ctx, `UPDATE query_log SET success = 1`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}

func TestDashboardsAndCharts(t *testing.T) {
	ctx := context.Background()
	db := newTestMetadataDB(t)
	owner := createTestUser(t, db, "owner")
	dbID, err := RegisterDatabase(ctx, db, owner.UserID, "sales", NewFileName())
	require.NoError(t, err)

	home := &domain.Dashboard{OwnerID: owner.UserID, Name: DefaultDashboardName, IsDefault: true}
	require.NoError(t, CreateDashboard(ctx, db, home))
	other := &domain.Dashboard{OwnerID: owner.UserID, Name: "Ops"}
	require.NoError(t, CreateDashboard(ctx, db, other))
	assert.ErrorIs(t, CreateDashboard(ctx, db, &domain.Dashboard{OwnerID: owner.UserID, Name: "Ops"}), ErrDashboardExists)

	// The partial unique index allows a single default per owner.
	err = CreateDashboard(ctx, db, &domain.Dashboard{OwnerID: owner.UserID, Name: "Second", IsDefault: true})
	require.Error(t, err)

	chart := &domain.Chart{OwnerID: owner.UserID, DashboardID: other.ID, DatabaseID: dbID, Title: "Totals",
		Query: "SELECT 1", ChartType: "bar"}
	require.NoError(t, CreateChart(ctx, db, chart))
	pos, err := NextChartPosition(ctx, db, other.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	require.NoError(t, WithTx(ctx, db, func(tx *sql.Tx) error {
		return SetDefaultDashboard(ctx, tx, owner.UserID, other.ID)
	}))
	def, err := FindDefaultDashboard(ctx, db, owner.UserID)
	require.NoError(t, err)
	assert.Equal(t, other.ID, def.ID)
	assert.Equal(t, 1, def.ChartCount)

	require.NoError(t, MoveCharts(ctx, db, other.ID, home.ID))
	charts, err := ListCharts(ctx, db, home.ID)
	require.NoError(t, err)
	require.Len(t, charts, 1)
	assert.Equal(t, "sales", charts[0].DatabaseName)

	// Charts go away with the database they query.
	require.NoError(t, DeleteDatabaseRegistration(ctx, db, dbID))
	_, err = FindChart(ctx, db, owner.UserID, chart.ID)
	assert.ErrorIs(t, err, ErrChartNotFound)

	list, err := ListDashboards(ctx, db, owner.UserID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].IsDefault)
}
