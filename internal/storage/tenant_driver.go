package storage

import (
	"database/sql"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/Annany2002/sqlitecult/internal/core"
)

// Tenant connections are confined to their own file. Query-only sessions
// additionally refuse every pragma assignment.
const (
	tenantDriver         = "sqlite3_tenant"
	tenantReadOnlyDriver = "sqlite3_tenant_ro"
)

// ErrStatementNotAllowed is returned for SQL that would reach outside the
// tenant file.
var ErrStatementNotAllowed = fmt.Errorf("%w: statement is not allowed on tenant databases", core.ErrPermissionDenied)

func init() {
	sql.Register(tenantDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			confine(conn, false)
			return nil
		},
	})
	sql.Register(tenantReadOnlyDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			confine(conn, true)
			return nil
		},
	})
}

// confine stops conn from attaching other files. With readOnly set it also
// denies pragmas given a value, except the introspection ones.
func confine(conn *sqlite3.SQLiteConn, readOnly bool) {
	conn.SetLimit(sqlite3.SQLITE_LIMIT_ATTACHED, 0)
	conn.RegisterAuthorizer(func(op int, arg1, arg2, _ string) int {
		switch op {
		case sqlite3.SQLITE_ATTACH, sqlite3.SQLITE_DETACH:
			return sqlite3.SQLITE_DENY
		case sqlite3.SQLITE_PRAGMA:
			if readOnly && arg2 != "" && !core.IsReadPragma(arg1) {
				return sqlite3.SQLITE_DENY
			}
		}
		return sqlite3.SQLITE_OK
	})
}
