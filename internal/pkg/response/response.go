package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"estatecollab/internal/pkg/validator"
)

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// BindError reports a request body or query binding failure with per-field details.
func BindError(c *gin.Context, err error) {
	ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", validator.Fields(err))
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
}
