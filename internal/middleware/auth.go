package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mesikahq/outbreak-exchange/internal/auth"
	"github.com/mesikahq/outbreak-exchange/internal/model"
)

const principalKey = "principal"

// Auth resolves the bearer token into a Principal and stores it on the gin
// context.
func Auth(authService auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			unauthenticated(c)
			return
		}

		principal, err := authService.ResolvePrincipal(c.Request.Context(), token)
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Inactive user"})
			return
		case errors.Is(err, auth.ErrUnauthenticated):
			unauthenticated(c)
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

func unauthenticated(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
}

// PrincipalFrom returns the principal set by Auth.
func PrincipalFrom(c *gin.Context) (model.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return model.Principal{}, false
	}
	p, ok := v.(model.Principal)
	return p, ok
}
