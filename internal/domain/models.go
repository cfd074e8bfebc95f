// internal/domain/models.go
package domain

import (
	"fmt"
	"strings"
	"time"
)

// User defines the structure for user data in the metadata DB
type User struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsSuperuser  bool      `json:"is_superuser"`
	IsStaff      bool      `json:"is_staff"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsPrivileged reports whether the user bypasses per-database permissions.
func (u *User) IsPrivileged() bool {
	return u != nil && (u.IsSuperuser || u.IsStaff)
}

// Database is the metadata record of one tenant SQLite file.
type Database struct {
	DatabaseID  int64     `json:"database_id"`
	OwnerID     string    `json:"owner_id"`
	OwnerName   string    `json:"owner_name,omitempty"`
	DisplayName string    `json:"name"`
	FileName    string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Level is the resolved access a principal has on a database.
type Level int

const (
	NoAccess Level = iota
	Read
	Write
	Admin
)

func (l Level) String() string {
	switch l {
	case Read:
		return "read"
	case Write:
		return "write"
	case Admin:
		return "admin"
	default:
		return "none"
	}
}

// Allows reports whether l satisfies the required level.
func (l Level) Allows(required Level) bool {
	return l >= required
}

// ParseLevel maps a grant level name onto a Level. Only grantable levels parse.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read":
		return Read, nil
	case "write":
		return Write, nil
	case "admin":
		return Admin, nil
	}
	return NoAccess, fmt.Errorf("unknown permission level %q", s)
}

// MarshalText lets levels serialize as their names in JSON.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Permission is a level granted to a non-owner on one database.
type Permission struct {
	ID         int64     `json:"id"`
	DatabaseID int64     `json:"database_id"`
	GranteeID  string    `json:"user_id"`
	Grantee    string    `json:"username,omitempty"`
	Level      Level     `json:"level"`
	GrantedBy  string    `json:"granted_by,omitempty"`
	GrantedAt  time.Time `json:"granted_at"`
}

// Capability is one action an API token may perform.
type Capability string

const (
	CapRead   Capability = "read"
	CapCreate Capability = "create"
	CapUpdate Capability = "update"
	CapDelete Capability = "delete"
)

// AllCapabilities in display order.
var AllCapabilities = []Capability{CapRead, CapCreate, CapUpdate, CapDelete}

// ParseCapabilities validates a list of capability names, dropping duplicates.
func ParseCapabilities(names []string) ([]Capability, error) {
	seen := make(map[Capability]bool, len(names))
	caps := make([]Capability, 0, len(names))
	for _, name := range names {
		c := Capability(strings.ToLower(strings.TrimSpace(name)))
		switch c {
		case CapRead, CapCreate, CapUpdate, CapDelete:
		default:
			return nil, fmt.Errorf("unknown capability %q", name)
		}
		if !seen[c] {
			seen[c] = true
			caps = append(caps, c)
		}
	}
	return caps, nil
}

// ApiCredential is the programmatic access configuration of one database.
type ApiCredential struct {
	DatabaseID  int64        `json:"database_id"`
	Enabled     bool         `json:"enabled"`
	SigningKey  string       `json:"-"`
	Permissions []Capability `json:"permissions"`
	Token       string       `json:"token,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// QueryLogEntry is one audited query execution.
type QueryLogEntry struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	DatabaseName string    `json:"database_name"`
	Query        string    `json:"query"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ExecutedAt   time.Time `json:"executed_at"`
}

// Dashboard groups charts for one user.
type Dashboard struct {
	ID          int64     `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsDefault   bool      `json:"is_default"`
	Position    int       `json:"position"`
	ChartCount  int       `json:"chart_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Chart is a saved query plus its visualization settings.
type Chart struct {
	ID              int64     `json:"id"`
	OwnerID         string    `json:"owner_id"`
	DashboardID     int64     `json:"dashboard_id"`
	DatabaseID      int64     `json:"database_id"`
	DatabaseName    string    `json:"database_name"`
	Title           string    `json:"title"`
	Query           string    `json:"query"`
	ChartType       string    `json:"chart_type"`
	RefreshInterval int       `json:"refresh_interval"`
	Position        int       `json:"position"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ChartTypes accepted for charts.
var ChartTypes = map[string]bool{
	"bar":       true,
	"line":      true,
	"pie":       true,
	"doughnut":  true,
	"polarArea": true,
	"radar":     true,
}

// RefreshIntervals accepted for charts, in seconds. Zero disables refresh.
var RefreshIntervals = map[int]bool{0: true, 30: true, 60: true, 300: true, 600: true, 1800: true, 3600: true}
