package core

import "strings"

// writeKeywords are the leading keywords that make a statement need write access.
var writeKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER",
	"TRUNCATE", "REPLACE", "UPSERT", "VACUUM", "REINDEX", "ATTACH", "DETACH", "ANALYZE",
}

// readPragmas take an argument in call form without changing anything.
var readPragmas = map[string]bool{
	"table_info": true, "table_xinfo": true, "table_list": true,
	"index_list": true, "index_info": true, "index_xinfo": true,
	"foreign_key_list": true, "foreign_key_check": true,
	"integrity_check": true, "quick_check": true,
}

// IsReadPragma reports whether a PRAGMA given an argument only reads state.
func IsReadPragma(name string) bool {
	return readPragmas[strings.ToLower(name)]
}

// IsWriteStatement reports whether any statement in query modifies the
// database. It only gates permissions; result classification is done by the
// engine.
func IsWriteStatement(query string) bool {
	for _, stmt := range SplitStatements(query) {
		if isWrite(stmt) {
			return true
		}
	}
	return false
}

func isWrite(stmt string) bool {
	keyword := strings.ToUpper(firstKeyword(stmt))
	if keyword == "WITH" {
		// CTE prefix: look for a write keyword anywhere in the statement.
		upper := strings.ToUpper(stmt)
		for _, kw := range []string{"INSERT", "UPDATE", "DELETE", "REPLACE"} {
			if containsWord(upper, kw) {
				return true
			}
		}
		return false
	}
	for _, kw := range writeKeywords {
		if keyword == kw {
			return true
		}
	}
	if keyword != "PRAGMA" {
		return false
	}
	// Both "PRAGMA x = v" and "PRAGMA x(v)" set x, except for the
	// introspection pragmas whose argument names an object.
	name, hasArg := pragmaCall(stmt)
	return hasArg && !IsReadPragma(name)
}

// pragmaCall returns the unqualified pragma name of stmt and whether it is
// given a value.
func pragmaCall(stmt string) (string, bool) {
	rest := strings.TrimSpace(stmt[len("PRAGMA"):])
	end := strings.IndexAny(rest, "=( \t\n")
	if end < 0 {
		return stripSchema(rest), false
	}
	name := stripSchema(rest[:end])
	tail := strings.TrimSpace(rest[end:])
	return name, strings.HasPrefix(tail, "=") || strings.HasPrefix(tail, "(")
}

func stripSchema(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// IsVacuumInto reports whether any statement in query is VACUUM INTO, which
// writes a copy of the database to another file.
func IsVacuumInto(query string) bool {
	for _, stmt := range SplitStatements(query) {
		if strings.EqualFold(firstKeyword(stmt), "VACUUM") && containsWord(strings.ToUpper(stmt), "INTO") {
			return true
		}
	}
	return false
}

func firstKeyword(stmt string) string {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return ""
	}
	word := fields[0]
	if i := strings.IndexAny(word, "(;"); i >= 0 {
		word = word[:i]
	}
	return word
}

// SplitStatements splits SQL text on semicolons outside quotes and comments.
// Comments are replaced by a space and empty statements are dropped.
func SplitStatements(query string) []string {
	var (
		stmts []string
		b     strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			stmts = append(stmts, s)
		}
		b.Reset()
	}
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			closer := c
			if c == '[' {
				closer = ']'
			}
			end := quotedEnd(query, i+1, closer)
			b.WriteString(query[i:end])
			i = end - 1
		case strings.HasPrefix(query[i:], "--"):
			for i < len(query) && query[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
		case strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				i = len(query)
			} else {
				i += end + 3
			}
			b.WriteByte(' ')
		case c == ';':
			flush()
		default:
			b.WriteByte(c)
		}
	}
	flush()
	return stmts
}

// quotedEnd returns the index just past the quote closing at or after start.
// A doubled closing quote is an escaped quote.
func quotedEnd(query string, start int, closer byte) int {
	for j := start; j < len(query); j++ {
		if query[j] != closer {
			continue
		}
		if closer != ']' && j+1 < len(query) && query[j+1] == closer {
			j++
			continue
		}
		return j + 1
	}
	return len(query)
}

func containsWord(s, word string) bool {
	for idx := 0; ; {
		j := strings.Index(s[idx:], word)
		if j < 0 {
			return false
		}
		start := idx + j
		end := start + len(word)
		if (start == 0 || !isWordChar(s[start-1])) && (end == len(s) || !isWordChar(s[end])) {
			return true
		}
		idx = end
	}
}

func isWordChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}

// KeywordsIn returns the words that appear in stmt outside quoted text and
// identifiers, in the order given.
func KeywordsIn(stmt string, words ...string) []string {
	upper := strings.ToUpper(stripQuoted(stmt))
	var found []string
	for _, w := range words {
		if containsWord(upper, strings.ToUpper(w)) {
			found = append(found, w)
		}
	}
	return found
}

// stripQuoted replaces every quoted string or identifier with a space.
func stripQuoted(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' || c == '"' || c == '`' || c == '[' {
			closer := c
			if c == '[' {
				closer = ']'
			}
			i = quotedEnd(s, i+1, closer) - 1
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
