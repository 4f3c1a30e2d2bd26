package handlers

import (
	"net/http"
	"strconv"

	"leadlynx/internal/errs"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// respondError maps the error kinds to status codes. Internal errors are
// logged and answered with a generic message.
func respondError(c *gin.Context, logger *pterm.Logger, err error, message string) {
	switch {
	case errs.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errs.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errs.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.WithCaller().Error(message, logger.Args("path", c.FullPath(), "error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}

// idParam reads a positive numeric path parameter
func idParam(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || value == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(value), true
}

// intQuery reads a bounded integer query parameter, falling back to def
func intQuery(c *gin.Context, name string, def, max int) int {
	if raw := c.Query(name); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil && val > 0 {
			if val > max {
				return max
			}
			return val
		}
	}
	return def
}
