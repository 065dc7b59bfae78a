package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/saasops/backend/internal/interfaces/http/dto"
)

// RequirePermission ensures the authenticated user holds the given permission.
// Must run after JWTAuth.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetJWTClaims(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeUnauthorized,
					"Authentication required", GetRequestID(c)))
			return
		}

		if !claims.HasPermission(permission) {
			handlePermissionDenied(c)
			return
		}

		c.Next()
	}
}

// RequireAnyPermission ensures the authenticated user holds at least one
// of the given permissions. Must run after JWTAuth.
func RequireAnyPermission(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetJWTClaims(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeUnauthorized,
					"Authentication required", GetRequestID(c)))
			return
		}

		if !claims.HasAnyPermission(permissions...) {
			handlePermissionDenied(c)
			return
		}

		c.Next()
	}
}

func handlePermissionDenied(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden,
		dto.NewErrorResponseWithRequestID(dto.ErrCodeForbidden,
			"Insufficient permissions", GetRequestID(c)))
}
