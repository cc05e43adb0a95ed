package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hkshop/storefront/common/auth"
	apperrors "github.com/hkshop/storefront/common/errors"
)

const (
	OwnerContextKey = "ownerIdentity"
	RoleContextKey  = "role"
	AuthCookieName  = "authToken"
	GuestIdentity   = "guest"
	RoleAdmin       = "admin"
)

// ResolveOwner sets the caller's identity from the authToken cookie or a
// bearer token. Anonymous or invalid callers become "guest".
func ResolveOwner(parser *auth.TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, role := GuestIdentity, ""
		if tok := tokenFromRequest(c); tok != "" {
			if claims, err := parser.Parse(tok, ""); err == nil {
				if email, ok := claims["email"].(string); ok && email != "" {
					owner = email
				}
				if r, ok := claims["role"].(string); ok {
					role = r
				}
			}
		}
		c.Set(OwnerContextKey, owner)
		c.Set(RoleContextKey, role)
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) string {
	if v, err := c.Cookie(AuthCookieName); err == nil && v != "" {
		return v
	}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// GetOwnerIdentity returns the identity set by ResolveOwner, or "guest".
func GetOwnerIdentity(c *gin.Context) string {
	if v := c.GetString(OwnerContextKey); v != "" {
		return v
	}
	return GuestIdentity
}

// RequireMember rejects guests.
func RequireMember() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetOwnerIdentity(c) == GuestIdentity {
			apperrors.Respond(c, apperrors.ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// AdminOnly restricts access to admin role.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetOwnerIdentity(c) == GuestIdentity {
			apperrors.Respond(c, apperrors.ErrUnauthorized)
			return
		}
		if c.GetString(RoleContextKey) != RoleAdmin {
			apperrors.Respond(c, apperrors.ErrForbidden)
			return
		}
		c.Next()
	}
}
