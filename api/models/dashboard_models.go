package models

// DashboardRequest creates or edits a dashboard. On update, omitted fields
// keep their value.
type DashboardRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=100"`
	Description *string `json:"description" binding:"omitempty,max=500"`
	Position    *int    `json:"position" binding:"omitempty,min=0"`
}

// ChartRequest creates or replaces a chart.
type ChartRequest struct {
	Title           string `json:"title" binding:"required,max=200"`
	Database        string `json:"database" binding:"required"`
	Query           string `json:"query" binding:"required"`
	ChartType       string `json:"chart_type" binding:"required"`
	RefreshInterval int    `json:"refresh_interval" binding:"min=0"`
	DashboardID     *int64 `json:"dashboard_id"`
	Position        *int   `json:"position" binding:"omitempty,min=0"`
}

// ChartPreviewRequest runs a chart query without saving it.
type ChartPreviewRequest struct {
	Database string `json:"database" binding:"required"`
	Query    string `json:"query" binding:"required"`
}
