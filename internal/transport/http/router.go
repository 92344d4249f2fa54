package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"legacymigrate/backend/internal/config"
	"legacymigrate/backend/internal/health"
	"legacymigrate/backend/internal/middleware"
	"legacymigrate/backend/internal/monitoring"
	"legacymigrate/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config     *config.Config
	Migrations MigrationAPI
	Hub        *websocket.Hub      // 为空时不注册进度推送
	Health     *health.Checker     // 为空时不注册健康检查
	Metrics    *monitoring.Metrics
	Logger     *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, logger)
	router.Use(monitor.PanicRecovery())
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(gincors.New(corsConfig(deps.Config.CORS.AllowedOrigins)))

	handler := NewHandler(deps.Migrations, logger)

	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveHandler()))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyHandler()))
	}
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	v1 := router.Group("/api/v1")
	{
		// 携带整份导出的请求使用更大的请求体上限
		tenantRoutes := v1.Group("/tenants/:tenantId/migrations")
		{
			exportLimit := middleware.BodySizeLimit(middleware.ExportBodyLimit)
			tenantRoutes.POST("/analyze", exportLimit, handler.analyze)
			tenantRoutes.POST("/dry-run", exportLimit, handler.dryRun)
			tenantRoutes.POST("", exportLimit, handler.startMigration)
			tenantRoutes.GET("", handler.listMigrations)
		}

		migrationRoutes := v1.Group("/migrations/:id")
		migrationRoutes.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))
		{
			migrationRoutes.GET("", handler.getProgress)
			migrationRoutes.POST("/cancel", handler.cancelMigration)
			migrationRoutes.POST("/rollback", handler.rollbackMigration)
			migrationRoutes.GET("/errors.xlsx", handler.downloadErrors)
			if deps.Hub != nil {
				migrationRoutes.GET("/ws", websocket.HandleProgress(deps.Hub))
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "接口不存在")
	})

	return router
}

func corsConfig(origins []string) gincors.Config {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cfg := gincors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Tenant-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Location"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range cfg.AllowOrigins {
		if origin == "*" {
			cfg.AllowCredentials = false
			break
		}
	}
	return cfg
}
