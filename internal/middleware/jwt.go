package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fir-api/internal/models"
	appErrors "github.com/noah-isme/fir-api/pkg/errors"
	"github.com/noah-isme/fir-api/pkg/logger"
	"github.com/noah-isme/fir-api/pkg/response"
)

// Context keys for the authenticated request.
const (
	ContextPrincipalKey = "principal"
	ContextClaimsKey    = "claims"
)

// TokenValidator resolves a bearer token to the principal it was issued for.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (models.Principal, *models.JWTClaims, error)
}

// JWT protects routes by requiring a valid, unrevoked access token. The
// principal snapshot from the token is attached to the request context.
func JWT(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing or malformed authorization header"))
			c.Abort()
			return
		}

		principal, claims, err := validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		setPrincipal(c, principal, claims)
		c.Next()
	}
}

// OptionalJWT attaches the principal when a valid token is present but never blocks.
func OptionalJWT(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if principal, claims, err := validator.ValidateToken(c.Request.Context(), token); err == nil {
				setPrincipal(c, principal, claims)
			}
		}
		c.Next()
	}
}

// PrincipalFrom returns the request's principal; the zero (anonymous)
// principal when the request is unauthenticated.
func PrincipalFrom(c *gin.Context) models.Principal {
	if v, ok := c.Get(ContextPrincipalKey); ok {
		if p, ok := v.(models.Principal); ok {
			return p
		}
	}
	return models.Principal{}
}

// ClaimsFrom returns the token claims of the request, if any.
func ClaimsFrom(c *gin.Context) (*models.JWTClaims, bool) {
	v, ok := c.Get(ContextClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*models.JWTClaims)
	return claims, ok && claims != nil
}

func setPrincipal(c *gin.Context, principal models.Principal, claims *models.JWTClaims) {
	c.Set(ContextPrincipalKey, principal)
	c.Set(ContextClaimsKey, claims)
	c.Set(logger.PrincipalIDKey, principal.ID())
	c.Set(logger.PrincipalRoleKey, string(principal.Role()))
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
