package notification

import "github.com/gin-gonic/gin"

// RegisterRoutes registers all notification-related routes
func RegisterRoutes(protected *gin.RouterGroup, handler *Handler) {
	notifGroup := protected.Group("/notifications")
	{
		notifGroup.GET("", handler.GetNotifications)
		notifGroup.GET("/unread-count", handler.GetUnreadCount)
		notifGroup.PATCH("/:id/read", handler.MarkAsRead)
		notifGroup.POST("/read-all", handler.MarkAllAsRead)
		notifGroup.DELETE("/:id", handler.DeleteNotification)

		prefsGroup := notifGroup.Group("/preferences")
		{
			prefsGroup.GET("", handler.GetPreferences)
			prefsGroup.PATCH("", handler.UpdatePreferences)
			prefsGroup.POST("/reset", handler.ResetPreferences)
		}
	}
}

// RegisterWebSocket mounts the push endpoint. It authenticates with the token
// query parameter, so it sits outside the JWT-protected group.
func RegisterWebSocket(r gin.IRouter, ws *WSHandler) {
	r.GET("/ws", ws.HandleWebSocket)
}
