package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/huduma-ai/civicqa/internal/model"
)

const roleHeader = "X-Civic-Role"

// Role resolves the requester role from the upstream auth layer. An
// unknown or missing header defaults to resident; the stricter of the
// two scopes.
func Role() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := model.RoleResident
		if c.GetHeader(roleHeader) == string(model.RoleStaff) {
			role = model.RoleStaff
		}
		c.Set("role", string(role))
		c.Next()
	}
}
