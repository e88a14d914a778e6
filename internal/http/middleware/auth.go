// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the two identity mechanisms of the API:
//
//   - Identity() lifts the caller-supplied X-User-ID header into the Gin
//     context so downstream middleware (rate limiting, logging) and handlers
//     share one notion of "who is calling". The API trusts the header as-is;
//     there is no account system, identities are client-generated.
//   - AdminPIN() gates the operator surface. Every request under /admin must
//     carry the configured PIN in the X-Admin-Pin header; anything else is
//     rejected with 401 before reaching a handler.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderUserID identifies the calling user.
	HeaderUserID = "X-User-ID"
	// HeaderAdminPIN carries the operator PIN for /admin routes.
	HeaderAdminPIN = "X-Admin-Pin"
)

// Identity stores the X-User-ID header value (trimmed) under the "userID"
// context key when present. Handlers that require identity reject requests
// without it; public endpoints like /health never look at it.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
			c.Set("userID", uid)
		}
		c.Next()
	}
}

// AdminPIN returns a middleware enforcing the operator PIN on a route group.
//
// The comparison is constant-time. A missing or wrong PIN yields a 401 with
// the standard error envelope; the supplied value is never logged (the
// redacting logger masks the header as well).
func AdminPIN(pin string) gin.HandlerFunc {
	expected := []byte(pin)
	return func(c *gin.Context) {
		got := []byte(strings.TrimSpace(c.GetHeader(HeaderAdminPIN)))
		if len(expected) == 0 || subtle.ConstantTimeCompare(expected, got) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "unauthorized",
				"message":    "valid admin PIN required",
			})
			return
		}
		c.Next()
	}
}
