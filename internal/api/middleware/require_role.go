package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/utils"
)

// RoleOf returns the role JWTAuth stored on the request.
func RoleOf(c *gin.Context) models.UserRole {
	v, _ := c.Get("role")
	s, _ := v.(string)
	return models.UserRole(strings.ToLower(strings.TrimSpace(s)))
}

// RequireRole lets only the listed roles through. Leaving, exporting and
// speaker attribution are host actions.
func RequireRole(allowed ...models.UserRole) gin.HandlerFunc {
	allow := make(map[models.UserRole]struct{}, len(allowed))
	for _, a := range allowed {
		allow[a] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := allow[RoleOf(c)]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, apiError{
				Code:    utils.CodeForbidden,
				Message: "forbidden",
			})
			return
		}
		c.Next()
	}
}
