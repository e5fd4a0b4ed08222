package middleware

import (
	"net/http"
	"strings"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/services"
	"carebridge/pkg/errors"

	"github.com/gin-gonic/gin"
)

const (
	ParticipantIDContextKey = "participant_id"
	RoleContextKey          = "participant_role"
)

// RequireRole admits only requests carrying a valid participant token for role.
func RequireRole(authService *services.AuthService, role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWith(c, errors.NewUnauthorizedError("authorization header required"))
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			abortWith(c, errors.NewUnauthorizedError(err.Error()))
			return
		}
		if claims.Role != role {
			abortWith(c, errors.NewAppError(errors.ErrCodeUnauthorized, "insufficient role", http.StatusForbidden))
			return
		}

		c.Set(ParticipantIDContextKey, claims.ParticipantID)
		c.Set(RoleContextKey, claims.Role)
		c.Next()
	}
}

// ParticipantFromContext returns the participant set by RequireRole.
func ParticipantFromContext(c *gin.Context) (domain.ParticipantID, bool) {
	v, ok := c.Get(ParticipantIDContextKey)
	if !ok {
		return "", false
	}
	id, ok := v.(domain.ParticipantID)
	return id, ok
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func abortWith(c *gin.Context, appErr *errors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	})
}
