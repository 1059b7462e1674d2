// README: Caller authentication; stores the caller's uid and role on the gin context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"schoolride/internal/infra"
	"schoolride/internal/types"
)

const (
	ctxUID  = "caller_uid"
	ctxRole = "caller_role"

	devUIDHeader  = "X-Debug-Uid"
	devRoleHeader = "X-Debug-Role"
)

// Auth verifies the bearer token with verifier. Without a verifier every
// request is refused; it never falls back to trusting request headers.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "authentication is not configured"})
			return
		}
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		setCaller(c, token.UID, token.Role)
		c.Next()
	}
}

// DevAuth trusts the X-Debug-Uid and X-Debug-Role headers. It is only
// installed when auth.dev_headers is switched on.
func DevAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetHeader(devUIDHeader)
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + devUIDHeader})
			return
		}
		setCaller(c, uid, infra.ParseRole(c.GetHeader(devRoleHeader)))
		c.Next()
	}
}

func setCaller(c *gin.Context, uid string, role types.Role) {
	c.Set(ctxUID, uid)
	c.Set(ctxRole, role)
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerRole(c *gin.Context) types.Role {
	v, _ := c.Get(ctxRole)
	r, _ := v.(types.Role)
	return r
}

// Caller returns the authenticated actor for service calls.
func Caller(c *gin.Context) types.Actor {
	return types.Actor{ID: types.ID(CallerUID(c)), Role: CallerRole(c)}
}
