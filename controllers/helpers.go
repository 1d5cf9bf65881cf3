package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-dispatch/middlewares"
	"github.com/yeremiapane/order-dispatch/models"
	"github.com/yeremiapane/order-dispatch/services"
	"github.com/yeremiapane/order-dispatch/utils"
)

var errUnauthenticated = errors.New("unauthorized")

// respondServiceError maps a rejected operation onto an HTTP status.
// Infrastructure failures are logged and reported as 500.
func respondServiceError(c *gin.Context, err error) {
	switch services.KindOf(err) {
	case services.KindNotFound:
		utils.RespondError(c, http.StatusNotFound, err)
	case services.KindPreconditionFailed:
		utils.RespondError(c, http.StatusConflict, err)
	case services.KindForbidden:
		utils.RespondError(c, http.StatusForbidden, err)
	case services.KindValidation:
		utils.RespondError(c, http.StatusBadRequest, err)
	default:
		utils.ErrorLogger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).Error("request failed")
		utils.RespondError(c, http.StatusInternalServerError, errors.New("internal server error"))
	}
}

// operatorFrom aborts with 401 when the request carries no operator.
func operatorFrom(c *gin.Context) (models.Operator, bool) {
	op, ok := middlewares.CurrentOperator(c)
	if !ok {
		utils.RespondError(c, http.StatusUnauthorized, errUnauthenticated)
		return models.Operator{}, false
	}
	return op, true
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("invalid %s", name))
		return 0, false
	}
	return uint(id), true
}

func queryUint(c *gin.Context, name string) (uint, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(v), nil
}

func queryBool(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	return err == nil && v
}
