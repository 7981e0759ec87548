package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"spinevision-backend/internal/shared/auth"
	"spinevision-backend/internal/shared/server/respond"
)

const (
	userIDKey    = "userId"
	userNameKey  = "userName"
	userEmailKey = "userEmail"
	userRoleKey  = "userRole"
)

// Auth validates the Bearer token and stores the caller's identity in context.
// Identity issuance itself lives outside this service; the pipeline only
// requires a verified user ID and role.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if token == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		claims, err := auth.VerifyJWT(token)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		c.Set(userIDKey, claims.Sub)
		if claims.Email != "" {
			c.Set(userEmailKey, claims.Email)
		}
		if claims.Name != "" {
			c.Set(userNameKey, claims.Name)
		}
		role := claims.Role
		if role == "" {
			role = auth.RoleDoctor
		}
		c.Set(userRoleKey, role)
		c.Next()
	}
}

// RequireAdmin rejects callers whose verified role is not admin.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(userRoleKey) != auth.RoleAdmin {
			respond.Error(c, http.StatusForbidden, "forbidden", "admin role required", nil)
			return
		}
		c.Next()
	}
}

// UserIDFromContext returns the authenticated user ID, or "".
func UserIDFromContext(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// UserNameFromContext returns the authenticated user's display name, or "".
func UserNameFromContext(c *gin.Context) string {
	return c.GetString(userNameKey)
}
