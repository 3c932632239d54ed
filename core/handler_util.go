package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// respondError sends unified error payload {"error": {"code", "message"}}.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

// respondValidationError sends the full list of violated fields so the
// client can render all errors at once.
func respondValidationError(c *gin.Context, issues []FieldIssue) {
	c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
		"code":    "VALIDATION_ERROR",
		"message": "入力内容を確認してください。",
		"issues":  issues,
	}})
}
