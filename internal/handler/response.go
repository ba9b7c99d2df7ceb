package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "flowbar/backend/internal/errors"
)

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	if apiErr == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal server error",
			"code":    "internal_error",
		})
		return
	}

	body := gin.H{
		"success": false,
		"error":   apiErr.Message,
		"code":    apiErr.Code,
	}
	if apiErr.Details != nil {
		body["details"] = apiErr.Details
	}
	c.JSON(apiErr.Status, body)
}

func writeOK(c *gin.Context, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(http.StatusOK, body)
}

// bindJSON decodes the request body into dest. An empty body is accepted
// when allowEmpty is set.
func bindJSON(c *gin.Context, dest interface{}, allowEmpty bool) bool {
	if allowEmpty && c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dest); err != nil {
		writeError(c, apperrors.BadRequest("invalid_json", "invalid request body"))
		return false
	}
	return true
}
