package routes

import (
	"net/http"
	"time"

	"wayfinder/handlers"
	"wayfinder/middleware"
	"wayfinder/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterNotificationRoutes registers the caller's notification feed.
func RegisterNotificationRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/notifications")
	{
		api.Use(middleware.JWTAuthUserMiddleware())
		api.GET("", hb.Notifications.ListNotificationsHandler)
		api.GET("/unread-count", hb.Notifications.UnreadCountHandler)
		api.POST("/read-all", hb.Notifications.MarkAllReadHandler)
		api.POST("/:id/read", hb.Notifications.MarkReadHandler)
	}
}

// RegisterSubscriptionRoutes registers push endpoint management.
func RegisterSubscriptionRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/api/push-public-key", hb.Subscriptions.PublicKeyHandler)

	api := r.Group("/api/push-subscriptions")
	{
		api.Use(middleware.JWTAuthUserMiddleware())
		api.POST("", hb.Subscriptions.RegisterEndpointHandler)
		api.GET("", hb.Subscriptions.ListEndpointsHandler)
		api.DELETE("", hb.Subscriptions.UnregisterEndpointHandler)
	}
}

// RegisterRealtimeRoute registers the websocket endpoint. It authenticates
// during the handshake, not through middleware.
func RegisterRealtimeRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/api/realtime", hb.Realtime.ServeWS)
}

// RegisterInternalRoutes registers the service-to-service API.
func RegisterInternalRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	internal := r.Group("/internal")
	{
		internal.Use(middleware.InternalKeyMiddleware(hb.InternalAPIKey))
		internal.POST("/notifications", hb.Internal.NotifyHandler)
		internal.POST("/reminders", hb.Internal.ScheduleReminderHandler)
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Hi, I'm Wayfinder notifications",
			"deps":    utils.GetHealthStatus(),
		})
	})
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RateLimitMiddleware(hb.MaxRequestsPerMin))

	RegisterHealthRoute(r)
	RegisterNotificationRoutes(r, hb)
	RegisterSubscriptionRoutes(r, hb)
	RegisterRealtimeRoute(r, hb)
	RegisterInternalRoutes(r, hb)
}
