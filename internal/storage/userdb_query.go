package storage

import (
	"context"
	"database/sql"
	"regexp"

	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
)

// RunQuery executes arbitrary SQL text. Whether the result is tabular is
// decided by the prepared statement's result columns, not by the text: the
// driver prepares on Query without stepping, so a statement with no result
// columns is closed unexecuted and then run with Exec for its row count.
// Text holding several statements is run as a script with Exec.
func (g *Gateway) RunQuery(ctx context.Context, fileName, query string) (*domain.QueryResult, error) {
	statements, err := tenantStatements(query)
	if err != nil {
		return nil, err
	}
	if len(statements) == 1 && plainVacuum.MatchString(statements[0]) {
		return g.vacuum(ctx, fileName, statements[0])
	}
	userDb, err := g.Open(ctx, fileName)
	if err != nil {
		return nil, err
	}
	defer userDb.Close()
	return runStatements(ctx, userDb, statements, query)
}

// RunReadQuery is RunQuery on a query-only connection: any statement that
// would change the file fails in the engine.
func (g *Gateway) RunReadQuery(ctx context.Context, fileName, query string) (*domain.QueryResult, error) {
	statements, err := tenantStatements(query)
	if err != nil {
		return nil, err
	}
	userDb, err := g.openQueryOnly(ctx, fileName)
	if err != nil {
		return nil, err
	}
	defer userDb.Close()
	return runStatements(ctx, userDb, statements, query)
}

func tenantStatements(query string) ([]string, error) {
	statements := core.SplitStatements(query)
	if len(statements) == 0 {
		return nil, ErrEmptyQuery
	}
	if core.IsVacuumInto(query) {
		return nil, ErrStatementNotAllowed
	}
	return statements, nil
}

// plainVacuum is the only statement shape run outside a tenant connection.
var plainVacuum = regexp.MustCompile(`(?i)^VACUUM(\s+"?main"?)?$`)

// vacuum compacts fileName in place. VACUUM attaches a scratch database
// internally, which tenant connections refuse, so it runs on a stock
// connection.
func (g *Gateway) vacuum(ctx context.Context, fileName, query string) (*domain.QueryResult, error) {
	userDb, err := g.openExisting(ctx, "sqlite3", fileName, "")
	if err != nil {
		return nil, err
	}
	defer userDb.Close()
	return execStatement(ctx, userDb, query)
}

func runStatements(ctx context.Context, db *sql.DB, statements []string, query string) (*domain.QueryResult, error) {
	if len(statements) > 1 {
		return execStatement(ctx, db, query)
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, core.NewEngineError("query", err)
	}
	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, core.NewEngineError("query", err)
	}
	if len(columns) == 0 {
		if err := rows.Close(); err != nil {
			return nil, core.NewEngineError("query", err)
		}
		return execStatement(ctx, db, query)
	}

	defer rows.Close()
	result := &domain.QueryResult{Tabular: true, Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, core.NewEngineError("query", err)
		}
		for i := range values {
			values[i] = scanValue(values[i])
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewEngineError("query", err)
	}
	return result, nil
}

func execStatement(ctx context.Context, db *sql.DB, query string) (*domain.QueryResult, error) {
	res, err := db.ExecContext(ctx, query)
	if err != nil {
		return nil, core.NewEngineError("query", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, core.NewEngineError("query", err)
	}
	return &domain.QueryResult{RowsAffected: affected}, nil
}
