package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
	"github.com/Annany2002/sqlitecult/internal/permission"
	"github.com/Annany2002/sqlitecult/internal/storage"
)

var (
	ErrDefaultDashboard = fmt.Errorf("%w: the default dashboard cannot be deleted", core.ErrInvalidInput)
	ErrChartWrites      = fmt.Errorf("%w: chart queries must not modify data", core.ErrInvalidInput)
)

// DashboardView is a dashboard with its charts in display order.
type DashboardView struct {
	domain.Dashboard
	Charts []domain.Chart `json:"charts"`
}

// ChartInput carries the editable fields of a chart. A nil DashboardID
// places a new chart on the owner's default dashboard.
type ChartInput struct {
	Title           string
	DatabaseName    string
	Query           string
	ChartType       string
	RefreshInterval int
	DashboardID     *int64
	Position        *int
}

func (in ChartInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return core.InvalidInputf("chart title is required")
	}
	if !domain.ChartTypes[in.ChartType] {
		return core.InvalidInputf("unsupported chart type %q", in.ChartType)
	}
	if !domain.RefreshIntervals[in.RefreshInterval] {
		return core.InvalidInputf("unsupported refresh interval %d", in.RefreshInterval)
	}
	return validateChartQuery(in.Query)
}

func validateChartQuery(query string) error {
	if len(core.SplitStatements(query)) == 0 {
		return storage.ErrEmptyQuery
	}
	if core.IsWriteStatement(query) {
		return ErrChartWrites
	}
	return nil
}

// DashboardService manages a user's dashboards and the charts on them.
type DashboardService struct {
	Databases *DatabaseService
	db        *sql.DB
}

// NewDashboardService returns a dashboard service sharing databases' pool.
func NewDashboardService(databases *DatabaseService) *DashboardService {
	return &DashboardService{Databases: databases, db: databases.DB}
}

// EnsureDefault returns user's default dashboard, creating it if needed.
func (s *DashboardService) EnsureDefault(ctx context.Context, user *domain.User) (*domain.Dashboard, error) {
	d, err := storage.FindDefaultDashboard(ctx, s.db, user.UserID)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, storage.ErrDashboardNotFound) {
		return nil, err
	}
	d = &domain.Dashboard{OwnerID: user.UserID, Name: storage.DefaultDashboardName, IsDefault: true}
	if err := storage.CreateDashboard(ctx, s.db, d); err != nil {
		// Lost a race with a concurrent request creating the same default.
		if existing, findErr := storage.FindDefaultDashboard(ctx, s.db, user.UserID); findErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return storage.FindDashboard(ctx, s.db, user.UserID, d.ID)
}

// List returns user's dashboards, default first.
func (s *DashboardService) List(ctx context.Context, user *domain.User) ([]domain.Dashboard, error) {
	if _, err := s.EnsureDefault(ctx, user); err != nil {
		return nil, err
	}
	return storage.ListDashboards(ctx, s.db, user.UserID)
}

// Get returns a dashboard with its charts.
func (s *DashboardService) Get(ctx context.Context, user *domain.User, id int64) (*DashboardView, error) {
	d, err := storage.FindDashboard(ctx, s.db, user.UserID, id)
	if err != nil {
		return nil, err
	}
	charts, err := storage.ListCharts(ctx, s.db, d.ID)
	if err != nil {
		return nil, err
	}
	return &DashboardView{Dashboard: *d, Charts: charts}, nil
}

// Create adds a dashboard after the existing ones.
func (s *DashboardService) Create(ctx context.Context, user *domain.User, name, description string) (*domain.Dashboard, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.InvalidInputf("dashboard name is required")
	}
	existing, err := s.List(ctx, user)
	if err != nil {
		return nil, err
	}
	d := &domain.Dashboard{OwnerID: user.UserID, Name: name, Description: description, Position: len(existing)}
	if err := storage.CreateDashboard(ctx, s.db, d); err != nil {
		return nil, err
	}
	return storage.FindDashboard(ctx, s.db, user.UserID, d.ID)
}

// Update renames, describes or repositions a dashboard. Nil fields keep
// their value.
func (s *DashboardService) Update(ctx context.Context, user *domain.User, id int64, name, description *string, position *int) (*domain.Dashboard, error) {
	d, err := storage.FindDashboard(ctx, s.db, user.UserID, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		if d.Name = strings.TrimSpace(*name); d.Name == "" {
			return nil, core.InvalidInputf("dashboard name is required")
		}
	}
	if description != nil {
		d.Description = *description
	}
	if position != nil {
		d.Position = *position
	}
	if err := storage.UpdateDashboard(ctx, s.db, d); err != nil {
		return nil, err
	}
	return storage.FindDashboard(ctx, s.db, user.UserID, id)
}

// SetDefault makes id the only default dashboard of user.
func (s *DashboardService) SetDefault(ctx context.Context, user *domain.User, id int64) error {
	return storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return storage.SetDefaultDashboard(ctx, tx, user.UserID, id)
	})
}

// Delete removes a dashboard, moving its charts to the default one.
func (s *DashboardService) Delete(ctx context.Context, user *domain.User, id int64) error {
	d, err := storage.FindDashboard(ctx, s.db, user.UserID, id)
	if err != nil {
		return err
	}
	if d.IsDefault {
		return ErrDefaultDashboard
	}
	def, err := s.EnsureDefault(ctx, user)
	if err != nil {
		return err
	}
	return storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := storage.MoveCharts(ctx, tx, d.ID, def.ID); err != nil {
			return err
		}
		return storage.DeleteDashboard(ctx, tx, user.UserID, d.ID)
	})
}

// chartTarget resolves the database a chart reads from. Read access is
// required, and the database must be registered so the chart can reference it.
func (s *DashboardService) chartTarget(ctx context.Context, user *domain.User, name string) (*Handle, error) {
	h, err := s.Databases.Open(ctx, user, name, domain.Read)
	if err != nil {
		return nil, err
	}
	if !permission.IsRegistered(h.Database) {
		return nil, ErrNotRegistered
	}
	return h, nil
}

func (s *DashboardService) dashboardFor(ctx context.Context, user *domain.User, id *int64) (*domain.Dashboard, error) {
	if id == nil {
		return s.EnsureDefault(ctx, user)
	}
	return storage.FindDashboard(ctx, s.db, user.UserID, *id)
}

// CreateChart saves a chart after checking its query against the target
// database's permissions.
func (s *DashboardService) CreateChart(ctx context.Context, user *domain.User, in ChartInput) (*domain.Chart, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	h, err := s.chartTarget(ctx, user, in.DatabaseName)
	if err != nil {
		return nil, err
	}
	d, err := s.dashboardFor(ctx, user, in.DashboardID)
	if err != nil {
		return nil, err
	}
	c := &domain.Chart{
		OwnerID:         user.UserID,
		DashboardID:     d.ID,
		DatabaseID:      h.DatabaseID,
		Title:           strings.TrimSpace(in.Title),
		Query:           in.Query,
		ChartType:       in.ChartType,
		RefreshInterval: in.RefreshInterval,
	}
	if in.Position != nil {
		c.Position = *in.Position
	} else if c.Position, err = storage.NextChartPosition(ctx, s.db, d.ID); err != nil {
		return nil, err
	}
	if err := storage.CreateChart(ctx, s.db, c); err != nil {
		return nil, err
	}
	return storage.FindChart(ctx, s.db, user.UserID, c.ID)
}

// UpdateChart replaces the editable fields of a chart. A nil DashboardID
// keeps the chart where it is.
func (s *DashboardService) UpdateChart(ctx context.Context, user *domain.User, id int64, in ChartInput) (*domain.Chart, error) {
	c, err := storage.FindChart(ctx, s.db, user.UserID, id)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	h, err := s.chartTarget(ctx, user, in.DatabaseName)
	if err != nil {
		return nil, err
	}
	if in.DashboardID != nil {
		d, err := storage.FindDashboard(ctx, s.db, user.UserID, *in.DashboardID)
		if err != nil {
			return nil, err
		}
		c.DashboardID = d.ID
	}
	if in.Position != nil {
		c.Position = *in.Position
	}
	c.DatabaseID = h.DatabaseID
	c.Title = strings.TrimSpace(in.Title)
	c.Query = in.Query
	c.ChartType = in.ChartType
	c.RefreshInterval = in.RefreshInterval
	if err := storage.UpdateChart(ctx, s.db, c); err != nil {
		return nil, err
	}
	return storage.FindChart(ctx, s.db, user.UserID, id)
}

// DeleteChart removes a chart.
func (s *DashboardService) DeleteChart(ctx context.Context, user *domain.User, id int64) error {
	return storage.DeleteChart(ctx, s.db, user.UserID, id)
}

// ChartData runs a saved chart's query. Read access to its database is
// checked again on every render.
func (s *DashboardService) ChartData(ctx context.Context, user *domain.User, id int64) (*domain.Chart, *domain.QueryResult, error) {
	c, err := storage.FindChart(ctx, s.db, user.UserID, id)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.Preview(ctx, user, c.DatabaseName, c.Query)
	if err != nil {
		return nil, nil, err
	}
	return c, result, nil
}

// Preview runs a chart query without saving it.
func (s *DashboardService) Preview(ctx context.Context, user *domain.User, databaseName, query string) (*domain.QueryResult, error) {
	if err := validateChartQuery(query); err != nil {
		return nil, err
	}
	h, err := s.Databases.Open(ctx, user, databaseName, domain.Read)
	if err != nil {
		return nil, err
	}
	return s.Databases.Gateway.RunReadQuery(ctx, h.FileName, query)
}
