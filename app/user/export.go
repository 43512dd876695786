package user

import (
	"arc/auth-api/internal"
	"arc/auth-api/internal/service"
	"arc/auth-api/pkg/middleware"
	"arc/auth-api/pkg/security"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Export returns everything stored about the session user as a JSON
// attachment. Token digests are left out.
func Export(c *gin.Context, d *internal.Deps) {
	requestID := middleware.RequestID(c)

	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated", "requestID": requestID})
		return
	}

	ctx := c.Request.Context()

	account, err := d.Users.Export(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) || errors.Is(err, security.ErrIntegrity) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "requestID": requestID})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export data", "requestID": requestID})
		zap.L().Error("Failed to export account", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	consents, err := d.Consents.ListFor(ctx, claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export data", "requestID": requestID})
		zap.L().Error("Failed to export consents", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	tokens, err := d.Tokens.ListFor(ctx, claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export data", "requestID": requestID})
		zap.L().Error("Failed to export tokens", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="thearc-data-export-%s.json"`, account.ID))
	c.IndentedJSON(http.StatusOK, gin.H{
		"user":     account,
		"consents": consents,
		"tokens":   tokens,
	})
}
