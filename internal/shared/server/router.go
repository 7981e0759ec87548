package server

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"spinevision-backend/internal/admin"
	"spinevision-backend/internal/engine"
	"spinevision-backend/internal/heatmap"
	"spinevision-backend/internal/report"
	"spinevision-backend/internal/shared/config"
	"spinevision-backend/internal/shared/metrics"
	"spinevision-backend/internal/shared/server/middleware"
	"spinevision-backend/internal/shared/server/respond"
	localstore "spinevision-backend/internal/shared/storage/artifact/local"
	"spinevision-backend/internal/shared/storage/db"
	"spinevision-backend/internal/uploads"
)

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	// Dependencies
	store := localstore.New(cfg.StorageDir)
	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		dbConn, err := db.Connect(context.Background(), cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
		if err != nil {
			log.Printf("failed to connect database, falling back to memory: %v", err)
		} else {
			if err := db.RunMigrations(context.Background(), dbConn); err != nil {
				log.Printf("failed to run migrations, falling back to memory: %v", err)
				dbConn = nil
			}
		}
		sqlDB = dbConn
	}

	var repo uploads.Repo
	if sqlDB != nil {
		repo = &uploads.PGRepo{DB: sqlDB}
	} else {
		repo = uploads.NewMemoryRepo()
	}
	uploadSvc := &uploads.Service{
		Repo:           repo,
		Store:          store,
		Engine:         engine.NewStub(cfg.ModelVersion),
		Heatmaps:       heatmap.New(),
		Reports:        report.NewRenderer(),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	uploadHandler := uploads.NewHandler(uploadSvc)
	adminHandler := admin.NewHandler(repo)

	r.GET("/metrics", metrics.Handler())
	r.Static("/storage", cfg.StorageDir)

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	authed := api.Group("", middleware.Auth())
	uploadHandler.RegisterRoutes(authed)
	adminGroup := authed.Group("", middleware.RequireAdmin())
	adminHandler.RegisterRoutes(adminGroup)

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
