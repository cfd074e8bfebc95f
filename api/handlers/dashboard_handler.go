package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/sqlitecult/api/models"
	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/service"
)

// DashboardHandler serves dashboards and the charts on them.
type DashboardHandler struct {
	Dashboards *service.DashboardService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(dashboards *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{Dashboards: dashboards}
}

// ListDashboards returns the caller's dashboards, creating the default one
// on first use.
func (h *DashboardHandler) ListDashboards(c *gin.Context) {
	list, err := h.Dashboards.List(c.Request.Context(), user(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dashboards": list})
}

func (h *DashboardHandler) CreateDashboard(c *gin.Context) {
	var req models.DashboardRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	if req.Name == nil {
		_ = c.Error(core.InvalidInputf("dashboard name is required"))
		return
	}
	description := ""
	if req.Description != nil {
		description = *req.Description
	}
	d, err := h.Dashboards.Create(c.Request.Context(), user(c), *req.Name, description)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Dashboard created", "dashboard": d})
}

// GetDashboard returns a dashboard with its charts.
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	view, err := h.Dashboards.Get(c.Request.Context(), user(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *DashboardHandler) UpdateDashboard(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req models.DashboardRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	d, err := h.Dashboards.Update(c.Request.Context(), user(c), id, req.Name, req.Description, req.Position)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Dashboard updated", "dashboard": d})
}

// DeleteDashboard deletes a dashboard and moves its charts to the default.
func (h *DashboardHandler) DeleteDashboard(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.Dashboards.Delete(c.Request.Context(), user(c), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Dashboard deleted"})
}

func (h *DashboardHandler) SetDefaultDashboard(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.Dashboards.SetDefault(c.Request.Context(), user(c), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Default dashboard updated"})
}

func chartInput(req models.ChartRequest) service.ChartInput {
	return service.ChartInput{
		Title:           req.Title,
		DatabaseName:    req.Database,
		Query:           req.Query,
		ChartType:       req.ChartType,
		RefreshInterval: req.RefreshInterval,
		DashboardID:     req.DashboardID,
		Position:        req.Position,
	}
}

// CreateChart saves a chart. Without a dashboard_id it lands on the
// default dashboard.
func (h *DashboardHandler) CreateChart(c *gin.Context) {
	var req models.ChartRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	chart, err := h.Dashboards.CreateChart(c.Request.Context(), user(c), chartInput(req))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Chart created", "chart": chart})
}

func (h *DashboardHandler) UpdateChart(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req models.ChartRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	chart, err := h.Dashboards.UpdateChart(c.Request.Context(), user(c), id, chartInput(req))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chart updated", "chart": chart})
}

func (h *DashboardHandler) DeleteChart(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.Dashboards.DeleteChart(c.Request.Context(), user(c), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chart deleted"})
}

// ChartData runs the saved query of a chart.
func (h *DashboardHandler) ChartData(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	chart, result, err := h.Dashboards.ChartData(c.Request.Context(), user(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chart": chart, "result": result})
}

// PreviewChart runs a chart query without saving it.
func (h *DashboardHandler) PreviewChart(c *gin.Context) {
	var req models.ChartPreviewRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	result, err := h.Dashboards.Preview(c.Request.Context(), user(c), req.Database, req.Query)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}
