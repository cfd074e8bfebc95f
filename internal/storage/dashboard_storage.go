package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Annany2002/sqlitecult/internal/domain"
)

// DefaultDashboardName is used when a user's default dashboard is created lazily.
const DefaultDashboardName = "My Dashboard"

const dashboardColumns = `d.id, d.owner_id, d.name, d.description, d.is_default, d.position, d.created_at, d.updated_at,
	(SELECT COUNT(*) FROM charts c WHERE c.dashboard_id = d.id)`

func scanDashboard(row interface{ Scan(...any) error }) (*domain.Dashboard, error) {
	var d domain.Dashboard
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Name, &d.Description, &d.IsDefault, &d.Position,
		&d.CreatedAt, &d.UpdatedAt, &d.ChartCount); err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDashboard inserts a dashboard and sets its id.
func CreateDashboard(ctx context.Context, db DBTX, d *domain.Dashboard) error {
	result, err := db.ExecContext(ctx, `INSERT INTO dashboards (owner_id, name, description, is_default, position)
		VALUES (?, ?, ?, ?, ?)`, d.OwnerID, d.Name, d.Description, d.IsDefault, d.Position)
	if err != nil {
		if isUniqueViolation(err, "dashboards.name") {
			return ErrDashboardExists
		}
		return fmt.Errorf("database error creating dashboard: %w", err)
	}
	d.ID, err = result.LastInsertId()
	return err
}

// FindDashboard returns a dashboard owned by ownerID.
func FindDashboard(ctx context.Context, db DBTX, ownerID string, id int64) (*domain.Dashboard, error) {
	d, err := scanDashboard(db.QueryRowContext(ctx, `SELECT `+dashboardColumns+` FROM dashboards d WHERE d.id = ? AND d.owner_id = ?`, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDashboardNotFound
		}
		return nil, fmt.Errorf("database error finding dashboard: %w", err)
	}
	return d, nil
}

// FindDefaultDashboard returns the default dashboard of ownerID.
func FindDefaultDashboard(ctx context.Context, db DBTX, ownerID string) (*domain.Dashboard, error) {
	d, err := scanDashboard(db.QueryRowContext(ctx, `SELECT `+dashboardColumns+` FROM dashboards d WHERE d.owner_id = ? AND d.is_default = 1`, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDashboardNotFound
		}
		return nil, fmt.Errorf("database error finding default dashboard: %w", err)
	}
	return d, nil
}

// ListDashboards returns the dashboards of ownerID, default first.
func ListDashboards(ctx context.Context, db DBTX, ownerID string) ([]domain.Dashboard, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+dashboardColumns+` FROM dashboards d WHERE d.owner_id = ?
		ORDER BY d.is_default DESC, d.position, d.name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("database error listing dashboards: %w", err)
	}
	defer rows.Close()

	list := make([]domain.Dashboard, 0)
	for rows.Next() {
		d, err := scanDashboard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed processing dashboards: %w", err)
		}
		list = append(list, *d)
	}
	return list, rows.Err()
}

// UpdateDashboard saves name, description and position.
func UpdateDashboard(ctx context.Context, db DBTX, d *domain.Dashboard) error {
	result, err := db.ExecContext(ctx, `UPDATE dashboards SET name = ?, description = ?, position = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND owner_id = ?`, d.Name, d.Description, d.Position, d.ID, d.OwnerID)
	if err != nil {
		if isUniqueViolation(err, "dashboards.name") {
			return ErrDashboardExists
		}
		return fmt.Errorf("database error updating dashboard: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrDashboardNotFound
	}
	return nil
}

// SetDefaultDashboard clears the owner's other defaults then flags id. Call
// inside a transaction.
func SetDefaultDashboard(ctx context.Context, db DBTX, ownerID string, id int64) error {
	if _, err := db.ExecContext(ctx, `UPDATE dashboards SET is_default = 0 WHERE owner_id = ? AND id != ?`, ownerID, id); err != nil {
		return fmt.Errorf("database error clearing default dashboard: %w", err)
	}
	result, err := db.ExecContext(ctx, `UPDATE dashboards SET is_default = 1, updated_at = CURRENT_TIMESTAMP WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("database error setting default dashboard: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrDashboardNotFound
	}
	return nil
}

// DeleteDashboard removes a dashboard.
func DeleteDashboard(ctx context.Context, db DBTX, ownerID string, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM dashboards WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("database error deleting dashboard: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrDashboardNotFound
	}
	return nil
}

// MoveCharts reassigns every chart of one dashboard to another.
func MoveCharts(ctx context.Context, db DBTX, fromID, toID int64) error {
	if _, err := db.ExecContext(ctx, `UPDATE charts SET dashboard_id = ?, updated_at = CURRENT_TIMESTAMP WHERE dashboard_id = ?`, toID, fromID); err != nil {
		return fmt.Errorf("database error moving charts: %w", err)
	}
	return nil
}

// --- Charts ---

const chartColumns = `c.id, c.owner_id, c.dashboard_id, c.database_id, db.display_name, c.title, c.query, c.chart_type,
	c.refresh_interval, c.position, c.created_at, c.updated_at`

const chartFrom = ` FROM charts c JOIN databases db ON db.database_id = c.database_id`

func scanChart(row interface{ Scan(...any) error }) (*domain.Chart, error) {
	var c domain.Chart
	if err := row.Scan(&c.ID, &c.OwnerID, &c.DashboardID, &c.DatabaseID, &c.DatabaseName, &c.Title, &c.Query,
		&c.ChartType, &c.RefreshInterval, &c.Position, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// NextChartPosition returns the position after the last chart of a dashboard.
func NextChartPosition(ctx context.Context, db DBTX, dashboardID int64) (int, error) {
	var pos int
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM charts WHERE dashboard_id = ?`, dashboardID).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("database error reading chart positions: %w", err)
	}
	return pos, nil
}

// CreateChart inserts a chart and sets its id.
func CreateChart(ctx context.Context, db DBTX, c *domain.Chart) error {
	result, err := db.ExecContext(ctx, `INSERT INTO charts (owner_id, dashboard_id, database_id, title, query, chart_type, refresh_interval, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, c.OwnerID, c.DashboardID, c.DatabaseID, c.Title, c.Query, c.ChartType, c.RefreshInterval, c.Position)
	if err != nil {
		return fmt.Errorf("database error creating chart: %w", err)
	}
	c.ID, err = result.LastInsertId()
	return err
}

// FindChart returns a chart owned by ownerID.
func FindChart(ctx context.Context, db DBTX, ownerID string, id int64) (*domain.Chart, error) {
	c, err := scanChart(db.QueryRowContext(ctx, `SELECT `+chartColumns+chartFrom+` WHERE c.id = ? AND c.owner_id = ?`, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChartNotFound
		}
		return nil, fmt.Errorf("database error finding chart: %w", err)
	}
	return c, nil
}

// ListCharts returns the charts of a dashboard in display order.
func ListCharts(ctx context.Context, db DBTX, dashboardID int64) ([]domain.Chart, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+chartColumns+chartFrom+` WHERE c.dashboard_id = ? ORDER BY c.position, c.id`, dashboardID)
	if err != nil {
		return nil, fmt.Errorf("database error listing charts: %w", err)
	}
	defer rows.Close()

	list := make([]domain.Chart, 0)
	for rows.Next() {
		c, err := scanChart(rows)
		if err != nil {
			return nil, fmt.Errorf("failed processing charts: %w", err)
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// UpdateChart saves the editable chart fields.
func UpdateChart(ctx context.Context, db DBTX, c *domain.Chart) error {
	result, err := db.ExecContext(ctx, `UPDATE charts SET dashboard_id = ?, database_id = ?, title = ?, query = ?, chart_type = ?,
		refresh_interval = ?, position = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND owner_id = ?`,
		c.DashboardID, c.DatabaseID, c.Title, c.Query, c.ChartType, c.RefreshInterval, c.Position, c.ID, c.OwnerID)
	if err != nil {
		return fmt.Errorf("database error updating chart: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrChartNotFound
	}
	return nil
}

// DeleteChart removes a chart.
func DeleteChart(ctx context.Context, db DBTX, ownerID string, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM charts WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("database error deleting chart: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrChartNotFound
	}
	return nil
}
