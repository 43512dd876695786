package user

import (
	"arc/auth-api/internal"
	"arc/auth-api/internal/service"
	"arc/auth-api/pkg/middleware"
	"arc/auth-api/pkg/validators"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type changePasswordBody struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePassword replaces the password of the session user after checking
// the current one
func ChangePassword(c *gin.Context, d *internal.Deps) {
	requestID := middleware.RequestID(c)

	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated", "requestID": requestID})
		return
	}

	var data changePasswordBody
	if err := c.ShouldBindJSON(&data); err != nil || data.OldPassword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "requestID": requestID})
		return
	}

	if err := validators.PasswordValidator(data.NewPassword); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "requestID": requestID})
		return
	}

	ctx := c.Request.Context()

	current, err := d.Users.PasswordHash(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "requestID": requestID})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "requestID": requestID})
		zap.L().Error("Failed to fetch password hash", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	ok, err = d.Argon.Verify(data.OldPassword, current)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "requestID": requestID})
		zap.L().Error("Failed to verify password", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Incorrect old password", "requestID": requestID})
		return
	}

	hash, err := d.Argon.Hash(data.NewPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "requestID": requestID})
		zap.L().Error("Failed to hash password", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if err := d.Users.SetPasswordHash(ctx, claims.UserID, hash); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "requestID": requestID})
		zap.L().Error("Failed to update password", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	zap.L().Info("Password changed", zap.String("userID", claims.UserID), zap.String("requestID", requestID))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Password updated successfully",
	})
}
