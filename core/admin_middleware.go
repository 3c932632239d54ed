package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole ensures the resolved identity carries the given role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident := identityFrom(c)
		if ident == nil {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "ログインが必要です。")
			c.Abort()
			return
		}
		if ident.Role != role {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "管理者権限が必要です")
			c.Abort()
			return
		}
		c.Next()
	}
}
