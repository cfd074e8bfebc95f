package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
	"github.com/Annany2002/sqlitecult/internal/metrics"
	"github.com/Annany2002/sqlitecult/internal/permission"
	"github.com/Annany2002/sqlitecult/internal/storage"
)

// auditLog appends to the query log. Failing to append never fails the
// operation being audited.
type auditLog struct {
	db *sql.DB
}

func (a auditLog) record(ctx context.Context, userID, databaseName, query string, execErr error) {
	entry := &domain.QueryLogEntry{
		UserID:       userID,
		DatabaseName: databaseName,
		Query:        query,
		Success:      execErr == nil,
	}
	if execErr != nil {
		entry.ErrorMessage = execErr.Error()
	}
	// The request may already be cancelled; the entry is still written.
	if err := storage.AppendQueryLog(context.WithoutCancel(ctx), a.db, entry); err != nil {
		customLog.Warnf("Service: Failed to append query log for %s on '%s': %v", userID, databaseName, err)
	}
}

// QueryService runs ad-hoc SQL with permission checks and an audit trail.
type QueryService struct {
	Databases *DatabaseService
	audit     auditLog
}

// NewQueryService returns a query service over databases.
func NewQueryService(databases *DatabaseService) *QueryService {
	return &QueryService{Databases: databases, audit: auditLog{db: databases.DB}}
}

// Execute runs text against name. Read access is required; text holding
// any write statement requires Write, and anything else runs on a
// query-only connection. Every execution that passes the
// permission checks is audited with its outcome.
func (s *QueryService) Execute(ctx context.Context, user *domain.User, name, text string) (result *domain.QueryResult, err error) {
	h, err := s.Databases.Open(ctx, user, name, domain.Read)
	if err != nil {
		return nil, err
	}
	kind := metrics.KindRead
	if core.IsWriteStatement(text) {
		kind = metrics.KindWrite
		if !h.Level.Allows(domain.Write) {
			return nil, fmt.Errorf("%w: write access required to modify data", permission.ErrAccessDenied)
		}
	}

	start := time.Now()
	defer func() {
		metrics.ObserveQuery(kind, err, time.Since(start))
		s.audit.record(ctx, user.UserID, h.DisplayName, text, err)
	}()

	if kind == metrics.KindRead {
		return s.Databases.Gateway.RunReadQuery(ctx, h.FileName, text)
	}
	return s.Databases.Gateway.RunQuery(ctx, h.FileName, text)
}

// History returns the newest audited queries of user, optionally only those
// run against databaseName.
func (s *QueryService) History(ctx context.Context, user *domain.User, databaseName string) ([]domain.QueryLogEntry, error) {
	return storage.ListQueryLog(ctx, s.Databases.DB, user.UserID, databaseName, storage.QueryHistoryLimit)
}

// LogStatements audits DDL issued through the schema endpoints.
func (s *QueryService) LogStatements(ctx context.Context, user *domain.User, databaseName string, statements ...string) {
	for _, stmt := range statements {
		if stmt == "" {
			continue
		}
		s.audit.record(ctx, user.UserID, databaseName, stmt, nil)
	}
}
