package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flowbar/backend/internal/handler"
	"flowbar/backend/internal/middleware"
	"flowbar/backend/internal/service"
)

type Handlers struct {
	Auth     *handler.AuthHandler
	Timer    *handler.TimerHandler
	Platform *handler.PlatformHandler
	Gate     *handler.GateHandler
	Tracking *handler.TrackingHandler
	Settings *handler.SettingsHandler
	Stream   *handler.StreamHandler
}

func New(authService *service.AuthService, h Handlers, corsOrigins []string) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	api.POST("/auth/pair", h.Auth.Pair)

	protected := api.Group("")
	protected.Use(middleware.Auth(authService))
	protected.POST("/messages", h.Timer.Message)
	protected.GET("/stream", h.Stream.Stream)

	timer := protected.Group("/timer")
	timer.GET("", h.Timer.Info)
	timer.POST("/start", h.Timer.Start)
	timer.POST("/pause", h.Timer.Pause)
	timer.POST("/resume", h.Timer.Resume)
	timer.POST("/reset", h.Timer.Reset)
	timer.POST("/stop", h.Timer.Stop)
	timer.POST("/toggle", h.Timer.Toggle)

	platform := protected.Group("/platform")
	platform.POST("/tab-activated", h.Platform.TabActivated)
	platform.POST("/navigation", h.Platform.Navigation)
	platform.POST("/window-focus", h.Platform.WindowFocus)
	platform.POST("/alarm", h.Platform.Alarm)
	platform.POST("/startup", h.Platform.Startup)
	platform.POST("/installed", h.Platform.Installed)

	gate := protected.Group("/gate")
	gate.POST("/allow", h.Gate.Allow)
	gate.GET("/target", h.Gate.Target)
	gate.GET("/grants", h.Gate.Grants)

	tracking := protected.Group("/tracking")
	tracking.GET("", h.Tracking.TimeData)
	tracking.GET("/summary", h.Tracking.Summary)

	settings := protected.Group("/settings")
	settings.GET("", h.Settings.Get)
	settings.PUT("", h.Settings.Update)
	settings.PUT("/theme", h.Settings.SetTheme)
	settings.POST("/first-install", h.Settings.FirstInstall)

	return engine
}
