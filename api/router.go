// api/router.go
package api

import (
	"database/sql"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Annany2002/sqlitecult/api/handlers"
	"github.com/Annany2002/sqlitecult/api/middleware"
	"github.com/Annany2002/sqlitecult/config"
	"github.com/Annany2002/sqlitecult/internal/auth"
	"github.com/Annany2002/sqlitecult/internal/domain"
	"github.com/Annany2002/sqlitecult/internal/metrics"
	"github.com/Annany2002/sqlitecult/internal/service"
	"github.com/Annany2002/sqlitecult/internal/storage"
)

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	return c
}

// SetupRouter initializes the Gin router and sets up all routes.
// A non-positive RateLimitPerMinute disables rate limiting.
func SetupRouter(metaDB *sql.DB, cfg *config.Config) (*gin.Engine, error) {
	gateway, err := storage.NewGateway(cfg.SQLiteDatabasesDir, cfg.BusyTimeout)
	if err != nil {
		return nil, err
	}
	tokens := auth.NewAPITokenManager(cfg.APITokenSecret, cfg.APITokenLifetime)

	databases := service.NewDatabaseService(metaDB, gateway, tokens)
	queries := service.NewQueryService(databases)
	imports := service.NewImportService(databases, queries)
	permissions := service.NewPermissionService(databases)
	dashboards := service.NewDashboardService(databases)

	router := gin.Default() // Includes Logger and Recovery

	metrics.Register()
	router.Use(middleware.Metrics())
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	if cfg.RateLimitPerMinute > 0 {
		router.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)))
	}
	// Runs after every handler below and writes the error response.
	router.Use(middleware.ErrorHandler())

	authHandler := handlers.NewAuthHandler(metaDB, cfg)
	dbHandler := handlers.NewDatabaseHandler(databases)
	tableHandler := handlers.NewTableHandler(databases, queries)
	recordHandler := handlers.NewRecordHandler(databases)
	csvHandler := handlers.NewCSVHandler(imports)
	queryHandler := handlers.NewQueryHandler(queries)
	permHandler := handlers.NewPermissionHandler(permissions)
	dashHandler := handlers.NewDashboardHandler(dashboards)
	publicHandler := handlers.NewPublicAPIHandler(gateway)

	// --- Public Routes ---
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/signup", authHandler.Signup)
		authRoutes.POST("/login", authHandler.Login)
	}

	// --- Protected Routes ---
	apiRoutes := router.Group("/api/v1")
	apiRoutes.Use(middleware.AuthMiddleware(cfg, databases.Store))
	{
		apiRoutes.GET("/me", authHandler.Me)
		apiRoutes.GET("/users", authHandler.ListUsers)
		apiRoutes.GET("/history", queryHandler.History)

		apiRoutes.GET("/databases", dbHandler.ListDatabases)
		apiRoutes.POST("/databases", dbHandler.CreateDatabase)

		db := apiRoutes.Group("/databases/:db_name")
		db.GET("", dbHandler.GetDatabase)
		db.DELETE("", dbHandler.DeleteDatabase)
		db.GET("/schema", dbHandler.GetSchema)
		db.POST("/query", queryHandler.Execute)

		db.GET("/api", dbHandler.GetAPISettings)
		db.PUT("/api", dbHandler.UpdateAPISettings)
		db.POST("/api/regenerate", dbHandler.RegenerateAPIToken)

		db.GET("/permissions", permHandler.ListPermissions)
		db.POST("/permissions", permHandler.GrantPermission)
		db.PUT("/permissions/:user_id", permHandler.UpdatePermission)
		db.DELETE("/permissions/:user_id", permHandler.RevokePermission)
		db.POST("/transfer", permHandler.TransferOwnership)
		db.POST("/claim", permHandler.ClaimOwnership)

		db.POST("/tables", tableHandler.CreateTable)
		table := db.Group("/tables/:table_name")
		table.GET("", tableHandler.GetTable)
		table.DELETE("", tableHandler.DropTable)
		table.GET("/schema", tableHandler.GetTableSchema)

		table.POST("/columns", tableHandler.AddColumns)
		table.POST("/columns/drop", tableHandler.DropColumns)
		table.DELETE("/columns/:column_name", tableHandler.DropColumn)
		table.PATCH("/columns/:column_name", tableHandler.ModifyColumn)

		table.POST("/indexes", tableHandler.CreateIndex)
		table.DELETE("/indexes/:index_name", tableHandler.DropIndex)

		table.GET("/rows", recordHandler.ListRecords)
		table.POST("/rows", recordHandler.CreateRecord)
		table.GET("/rows/:rowid", recordHandler.GetRecord)
		table.PUT("/rows/:rowid", recordHandler.UpdateRecord)
		table.DELETE("/rows/:rowid", recordHandler.DeleteRecord)

		table.GET("/export", csvHandler.Export)
		table.POST("/import/preview", csvHandler.Preview)
		table.POST("/import", csvHandler.Import)

		apiRoutes.GET("/dashboards", dashHandler.ListDashboards)
		apiRoutes.POST("/dashboards", dashHandler.CreateDashboard)
		apiRoutes.GET("/dashboards/:id", dashHandler.GetDashboard)
		apiRoutes.PUT("/dashboards/:id", dashHandler.UpdateDashboard)
		apiRoutes.DELETE("/dashboards/:id", dashHandler.DeleteDashboard)
		apiRoutes.POST("/dashboards/:id/default", dashHandler.SetDefaultDashboard)

		apiRoutes.POST("/charts", dashHandler.CreateChart)
		apiRoutes.POST("/charts/preview", dashHandler.PreviewChart)
		apiRoutes.PUT("/charts/:id", dashHandler.UpdateChart)
		apiRoutes.DELETE("/charts/:id", dashHandler.DeleteChart)
		apiRoutes.GET("/charts/:id/data", dashHandler.ChartData)
	}

	// --- Token Routes ---
	publicRoutes := router.Group("/api/db/:db_name")
	publicRoutes.Use(middleware.APITokenMiddleware(databases))
	{
		canRead := middleware.RequireCapability(domain.CapRead)
		publicRoutes.GET("/tables", canRead, publicHandler.ListTables)
		publicRoutes.GET("/table/:table_name", canRead, publicHandler.ListRows)
		publicRoutes.POST("/table/:table_name", middleware.RequireCapability(domain.CapCreate), publicHandler.CreateRow)
		publicRoutes.GET("/table/:table_name/:rowid", canRead, publicHandler.GetRow)
		publicRoutes.PUT("/table/:table_name/:rowid", middleware.RequireCapability(domain.CapUpdate), publicHandler.UpdateRow)
		publicRoutes.DELETE("/table/:table_name/:rowid", middleware.RequireCapability(domain.CapDelete), publicHandler.DeleteRow)
	}

	return router, nil
}
