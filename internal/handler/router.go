package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/quakealert/internal/metrics"
	"github.com/quocanhngo/quakealert/internal/middleware"
	"github.com/quocanhngo/quakealert/internal/service"
	"github.com/quocanhngo/quakealert/internal/ws"
	"github.com/quocanhngo/quakealert/pkg/auth"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Deps carries what the routes need
type Deps struct {
	Engine      *service.Engine
	Poller      *service.Poller
	Hub         *ws.Hub
	Metrics     *metrics.Metrics
	JWT         *auth.JWTManager
	Redis       *redis.Client // optional, enables admin token revocation on REST and /ws
	CORSOrigins []string
}

// NewRouter builds the gin engine with every route mounted
func NewRouter(d Deps) *gin.Engine {
	router := gin.Default()

	// Serve swagger.json at /docs/swagger.json to avoid conflict with /swagger/* wildcard
	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")
	url := ginSwagger.URL("/docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, url))

	router.Use(middleware.CORSMiddleware(d.CORSOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "quakealert",
			"time":    time.Now().Format(time.RFC3339),
		})
	})
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	deviceHandler := NewDeviceHandler(d.Engine.Registry())
	checkHandler := NewCheckHandler(d.Engine)
	adminHandler := NewAdminHandler(d.Engine, d.Poller, d.Hub)
	wsHandler := NewWSHandler(d.Hub, d.JWT, d.Redis)

	// ==================== Device Routes (public) ====================
	router.POST("/register-token", deviceHandler.RegisterToken)
	router.POST("/register-token-direct", deviceHandler.RegisterTokenDirect)
	router.POST("/register-token-alternative", deviceHandler.RegisterTokenAlternative)
	router.POST("/register-device", deviceHandler.RegisterDevice)

	router.POST("/set-region", deviceHandler.SetRegion)
	router.POST("/set-min-magnitude", deviceHandler.SetMinMagnitude)
	router.POST("/set-location-filter", deviceHandler.SetLocationFilter)
	router.POST("/toggle-region-filter", deviceHandler.ToggleRegionFilter)
	router.POST("/toggle-magnitude-filter", deviceHandler.ToggleMagnitudeFilter)
	router.GET("/get-settings", deviceHandler.GetSettings)
	router.GET("/settings", deviceHandler.GetSettings)
	router.GET("/device-settings/:deviceId", deviceHandler.DeviceSettings)

	router.GET("/check-earthquakes", checkHandler.CheckEarthquakes)
	router.POST("/test-notification", checkHandler.TestNotification)
	router.POST("/test-distance", checkHandler.TestDistance)

	// ==================== Admin Routes (protected) ====================
	admin := router.Group("")
	admin.Use(middleware.AdminAuth(d.JWT, d.Redis))
	{
		admin.GET("/tokens", adminHandler.Tokens)
		admin.DELETE("/token/:token", adminHandler.DeleteToken)
		admin.POST("/reset-notifications", adminHandler.ResetNotifications)
		admin.POST("/reset-device-notifications", adminHandler.ResetDeviceNotifications)
		admin.GET("/test-cron", adminHandler.TestCron)
		admin.GET("/stats", adminHandler.Stats)
		admin.POST("/maintenance", adminHandler.Maintain)
	}

	// WebSocket authenticates via query parameter
	if d.Hub != nil {
		router.GET("/ws", wsHandler.HandleWebSocket)
	}

	return router
}
