// Package security flags suspicious values arriving through the public API.
// Row values are always bound as parameters, so a hit is logged and counted
// but never rejected.
package security

import (
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
	"github.com/sirupsen/logrus"

	"github.com/Annany2002/sqlitecult/internal/logger"
	"github.com/Annany2002/sqlitecult/internal/metrics"
)

var customLog = logger.NewLogger()

// EventSQLInjection labels injection-pattern hits in the security counter.
const EventSQLInjection = "sql_injection_pattern"

// Finding is one value that matched an injection pattern.
type Finding struct {
	Field       string
	Fingerprint string
}

// CheckValue reports whether a string value looks like SQL injection. Only
// strings are checked.
func CheckValue(field string, value any) *Finding {
	s, ok := value.(string)
	if !ok || s == "" {
		return nil
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
		return &Finding{Field: field, Fingerprint: string(fingerprint)}
	}
	return nil
}

// CheckValues checks every value of a row payload, in field order.
func CheckValues(values map[string]any) []Finding {
	fields := make([]string, 0, len(values))
	for k := range values {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	var findings []Finding
	for _, field := range fields {
		if f := CheckValue(field, values[field]); f != nil {
			findings = append(findings, *f)
		}
	}
	return findings
}

// AuditRowPayload logs and counts injection-pattern hits in values written
// to database.table by clientIP.
func AuditRowPayload(database, table, clientIP string, values map[string]any) []Finding {
	findings := CheckValues(values)
	for _, f := range findings {
		metrics.CounterForSecurityEvent(EventSQLInjection).Inc()
		customLog.WithFields(logrus.Fields{
			"event":       EventSQLInjection,
			"database":    database,
			"table":       table,
			"field":       f.Field,
			"fingerprint": f.Fingerprint,
			"client_ip":   clientIP,
		}).Warn("Security: SQL injection pattern in row payload")
	}
	return findings
}
