package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/huduma-ai/civicqa/internal/model"
	"github.com/huduma-ai/civicqa/internal/pkg/errs"
	"github.com/huduma-ai/civicqa/internal/pkg/response"
)

func getRole(c *gin.Context) model.Role {
	value, _ := c.Get("role")
	role, _ := value.(string)
	if role == string(model.RoleStaff) {
		return model.RoleStaff
	}
	return model.RoleResident
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Warn("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, errs.ErrBuildInProgress):
		response.Error(c, http.StatusConflict, "build_in_progress", "an index build is already running")
	case errors.Is(err, errs.ErrIndexNotBuilt):
		response.Error(c, http.StatusConflict, "index_not_built", "index not built yet, trigger POST /reindex first")
	case errors.Is(err, errs.ErrInvalid):
		response.Error(c, http.StatusBadRequest, "invalid", "invalid request")
	case errors.Is(err, errs.ErrLoadRoot):
		response.Error(c, http.StatusInternalServerError, "load_failed", "document root is not readable")
	default:
		response.Error(c, http.StatusInternalServerError, "internal", "internal error")
	}
}
