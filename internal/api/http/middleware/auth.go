package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mezmur-app/mezmur-sync/internal/identity"
)

const (
	CtxIdentity     = "identity"
	HeaderUserID    = "X-User-Id"
	HeaderAnonymous = "X-User-Anonymous"
)

// Verifier turns an ID token into an identity. *identity.FirebaseVerifier
// satisfies it.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (identity.Identity, error)
}

// Authenticate resolves the caller's identity.
// - A Bearer token must verify, or the request is rejected
// - Without a token and with allowHeader set, X-User-Id (and
//   X-User-Anonymous) are trusted. Use this ONLY for development/testing.
// - Otherwise the caller is a guest
func Authenticate(v Verifier, allowHeader bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity.Guest

		if token := extractToken(c); token != "" {
			if v == nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "token verification unavailable"})
				return
			}
			verified, err := v.Verify(c.Request.Context(), token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid token"})
				return
			}
			id = verified
		} else if allowHeader {
			if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
				id = identity.Identity{
					UserID:      uid,
					IsAnonymous: strings.EqualFold(c.GetHeader(HeaderAnonymous), "true"),
				}
			}
		}

		c.Set(CtxIdentity, id)
		c.Next()
	}
}

// RequireAccount rejects guests and anonymous sessions.
func RequireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentIdentity(c).Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "sign in required"})
			return
		}
		c.Next()
	}
}

// CurrentIdentity returns the identity set by Authenticate, or Guest.
func CurrentIdentity(c *gin.Context) identity.Identity {
	if v, ok := c.Get(CtxIdentity); ok {
		if id, ok := v.(identity.Identity); ok {
			return id
		}
	}
	return identity.Guest
}

// extractToken extracts the Bearer token from the Authorization header
func extractToken(c *gin.Context) string {
	bearerToken := c.GetHeader("Authorization")
	if len(bearerToken) > 7 && strings.HasPrefix(bearerToken, "Bearer ") {
		return strings.TrimSpace(bearerToken[7:])
	}
	return ""
}
