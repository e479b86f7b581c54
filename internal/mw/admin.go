package mw

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/errdef"
)

// AdminToken rejects requests whose bearer token does not match token.
// An empty token disables the guarded routes entirely.
func AdminToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			_ = c.Error(errdef.NewForbidden("admin routes are disabled"))
			c.Abort()
			return
		}

		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			_ = c.Error(errdef.NewForbidden("invalid admin token"))
			c.Abort()
			return
		}

		c.Next()
	}
}
