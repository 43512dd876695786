package auth

import (
	"arc/auth-api/internal"
	"arc/auth-api/internal/service"
	"arc/auth-api/pkg/middleware"
	"arc/auth-api/pkg/security"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Me returns the profile of the session user. emailVerified is read from the
// store, not from the session.
func Me(c *gin.Context, d *internal.Deps) {
	requestID := middleware.RequestID(c)

	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":     "Not authenticated",
			"requestID": requestID,
		})
		return
	}

	user, err := d.Users.FindByID(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) || errors.Is(err, security.ErrIntegrity) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "User not found",
				"requestID": requestID,
			})
			return
		}

		internalError(c, "Failed to fetch user", err)
		return
	}

	c.JSON(http.StatusOK, user)
}
