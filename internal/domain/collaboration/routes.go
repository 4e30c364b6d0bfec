package collaboration

import "github.com/gin-gonic/gin"

// RegisterRoutes registers all collaboration-related routes
func RegisterRoutes(protected *gin.RouterGroup, handler *Handler) {
	protected.GET("/progress-steps", handler.ProgressSteps)

	collabGroup := protected.Group("/collaborations")
	{
		collabGroup.POST("", handler.Propose)
		collabGroup.GET("", handler.List)
		collabGroup.GET("/:id", handler.Get)
		collabGroup.GET("/:id/activities", handler.Activities)

		collabGroup.POST("/:id/respond", handler.Respond)
		collabGroup.POST("/:id/activate", handler.Activate)
		collabGroup.POST("/:id/terminate", handler.Terminate)
		collabGroup.PATCH("/:id/status", handler.UpdateStatus)

		collabGroup.PUT("/:id/contract", handler.UpdateContract)
		collabGroup.POST("/:id/contract/sign", handler.Sign)

		collabGroup.POST("/:id/steps/:step/validate", handler.ValidateStep)
		collabGroup.POST("/:id/notes", handler.AddNote)
	}
}
