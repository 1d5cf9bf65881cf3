package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/order-dispatch/models"
	"github.com/yeremiapane/order-dispatch/utils"
)

// RoleCheck rejects operators whose role is not listed. Services apply the
// finer per-operation rules; this only guards whole route groups.
func RoleCheck(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		op, exists := CurrentOperator(c)
		if !exists {
			utils.RespondError(c, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
			c.Abort()
			return
		}

		if !op.Role.In(roles...) {
			utils.RespondError(c, http.StatusForbidden, fmt.Errorf("role %s may not access this resource", op.Role))
			c.Abort()
			return
		}

		c.Next()
	}
}
