// Package middleware provides HTTP middleware for the lotledger API.
package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "lotledger/internal/core/context"
)

// HeaderUserID names the operator performing a request. Authentication is
// handled upstream (gateway / reverse proxy); the ledger only stamps the
// forwarded identity on transactions and audit entries.
const HeaderUserID = "X-User-Id"

// UserContext extracts the operator identity from the request headers and
// adds it to the request context.
//
// The user ID is then available to the domain layer via appctx.GetUserID(ctx).
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader(HeaderUserID); userID != "" {
			ctx := appctx.WithUser(c.Request.Context(), &appctx.UserContext{UserID: userID})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
