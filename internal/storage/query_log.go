package storage

import (
	"context"
	"fmt"

	"github.com/Annany2002/sqlitecult/internal/domain"
)

// QueryHistoryLimit caps how many entries a history listing returns.
const QueryHistoryLimit = 100

// AppendQueryLog records one query execution. Entries are never updated.
func AppendQueryLog(ctx context.Context, db DBTX, entry *domain.QueryLogEntry) error {
	result, err := db.ExecContext(ctx, `INSERT INTO query_log (user_id, database_name, query, success, error_message)
		VALUES (?, ?, ?, ?, ?)`, entry.UserID, entry.DatabaseName, entry.Query, entry.Success, entry.ErrorMessage)
	if err != nil {
		return fmt.Errorf("database error appending query log: %w", err)
	}
	entry.ID, _ = result.LastInsertId()
	return nil
}

// ListQueryLog returns the newest entries for userID, optionally restricted
// to one database name.
func ListQueryLog(ctx context.Context, db DBTX, userID, databaseName string, limit int) ([]domain.QueryLogEntry, error) {
	if limit <= 0 || limit > QueryHistoryLimit {
		limit = QueryHistoryLimit
	}
	query := `SELECT id, user_id, database_name, query, success, error_message, executed_at FROM query_log WHERE user_id = ?`
	args := []any{userID}
	if databaseName != "" {
		query += ` AND database_name = ?`
		args = append(args, databaseName)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		customLog.Warnf("Storage: Error listing query log for %s: %v", userID, err)
		return nil, fmt.Errorf("database error listing query log: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.QueryLogEntry, 0)
	for rows.Next() {
		var e domain.QueryLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.DatabaseName, &e.Query, &e.Success, &e.ErrorMessage, &e.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed processing query log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
