package mw

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/errdef"
)

// ErrorHandler turns the last error attached to the context into a JSON response
// whose status reflects the error kind.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil || c.Writer.Written() {
			return
		}

		// nolint:gocritic
		if errdef.IsBadRequest(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else if errdef.IsForbidden(err) {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		} else if errdef.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		} else if errdef.IsConflict(err) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		} else if errdef.IsRetryable(err) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, please retry", "retryable": true})
		} else {
			id, _ := GetCorrelationID(c.Request.Context())
			err := fmt.Errorf("something went wrong. We'll look into it if you send us the id %q", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
	}
}
