package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/halcyon-labs/token-api/internal/models"
	appErrors "github.com/halcyon-labs/token-api/pkg/errors"
	"github.com/halcyon-labs/token-api/pkg/response"
)

// ContextUserKey is the gin context key storing access token claims.
const ContextUserKey = "currentPrincipal"

// AccessVerifier validates a presented access token.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, tokenString string) (*models.AccessClaims, error)
}

// JWT protects routes by requiring a valid access token.
func JWT(verifier AccessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := verifier.VerifyAccess(c.Request.Context(), parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// Claims returns the verified claims stored by JWT, or nil.
func Claims(c *gin.Context) *models.AccessClaims {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*models.AccessClaims)
	return claims
}

// RequireRoles allows only the listed roles past.
func RequireRoles(roles ...models.PrincipalRole) gin.HandlerFunc {
	allowed := make(map[models.PrincipalRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
