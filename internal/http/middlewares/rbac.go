package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole gates a route on the role RequireAuth stashed in the
// context; it must run after RequireAuth on the same chain.
func (m *AuthMiddleware) RequireRole(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)

		if !ok || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "unauthorized",
					"message": "Missing identity context",
				},
			})
			return
		}

		if role != required {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "forbidden",
					"message": fmt.Sprintf("%s role required", required),
				},
			})
			return
		}

		c.Next()
	}
}
