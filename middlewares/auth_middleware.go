package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/order-dispatch/models"
	"github.com/yeremiapane/order-dispatch/utils"
)

// OperatorKey is the gin context key holding the authenticated models.Operator.
const OperatorKey = "operator"

// AuthMiddleware validates the bearer token issued by the identity service.
// Browsers cannot set headers on a websocket handshake, so the token is also
// accepted from the "token" query parameter.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Authorization header missing"))
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(secret, tokenString)
		if err != nil || claims == nil {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Invalid or expired token"))
			c.Abort()
			return
		}

		if claims.UserID == 0 {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Invalid user ID in token"))
			c.Abort()
			return
		}

		role, ok := models.ParseRole(claims.Role)
		if !ok {
			utils.RespondError(c, http.StatusForbidden, errors.New("Unknown operator role"))
			c.Abort()
			return
		}

		c.Set(OperatorKey, models.Operator{ID: claims.UserID, Role: role})

		c.Next()
	}
}

// CurrentOperator returns the operator stored by AuthMiddleware.
func CurrentOperator(c *gin.Context) (models.Operator, bool) {
	v, exists := c.Get(OperatorKey)
	if !exists {
		return models.Operator{}, false
	}
	op, ok := v.(models.Operator)
	return op, ok
}
