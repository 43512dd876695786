package auth

import (
	"arc/auth-api/internal"
	"arc/auth-api/internal/service"
	"arc/auth-api/pkg/middleware"
	"arc/auth-api/pkg/security"
	"arc/auth-api/pkg/validators"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const resetMessage = "If that email exists, password reset instructions were sent."

// ResetRequest mails a password reset link. The answer never reveals whether
// the email is registered.
func ResetRequest(c *gin.Context, d *internal.Deps) {
	requestID := middleware.RequestID(c)

	var data emailBody
	if err := c.ShouldBindJSON(&data); err != nil || validators.EmailValidator(data.Email) != nil {
		badRequest(c, "Invalid email address")
		return
	}

	user, _, err := d.Users.FindByEmail(c.Request.Context(), data.Email)
	switch {
	case err == nil:
		ttl := d.Config.Tokens.ResetTTL

		_, err := d.Tokens.IssueAndSend(c.Request.Context(), user.ID, security.PurposeResetPassword, ttl, func(token string) error {
			subject, body := service.ResetPasswordMail(d.Config.App.PublicURL, user.FirstName, token, ttl)
			return d.Mailer.Send(user.Email, subject, body)
		})
		if err != nil {
			zap.L().Error("Failed to send password reset email", zap.Error(err), zap.String("requestID", requestID))
		}
	case errors.Is(err, service.ErrNotFound), errors.Is(err, security.ErrIntegrity):
	default:
		internalError(c, "Failed to find user", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": resetMessage,
	})
}

type resetConfirmBody struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func ResetConfirm(c *gin.Context, d *internal.Deps) {
	var data resetConfirmBody
	if err := c.ShouldBindJSON(&data); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if data.Token == "" {
		badRequest(c, invalidLink)
		return
	}

	// Checked before consuming so a weak password doesn't burn the link
	if err := validators.PasswordValidator(data.NewPassword); err != nil {
		badRequest(c, err.Error())
		return
	}

	hash, err := d.Argon.Hash(data.NewPassword)
	if err != nil {
		internalError(c, "Failed to hash password", err)
		return
	}

	ctx := c.Request.Context()

	// The token is only burned if the new hash was stored
	var userID string
	err = d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error

		userID, err = d.Tokens.WithTx(tx).Consume(ctx, data.Token, security.PurposeResetPassword)
		if err != nil {
			return err
		}

		return d.Users.WithTx(tx).SetPasswordHash(ctx, userID, hash)
	})
	if err != nil {
		if isTokenError(err) || errors.Is(err, service.ErrNotFound) {
			badRequest(c, invalidLink)
			return
		}

		internalError(c, "Failed to reset password", err)
		return
	}

	zap.L().Info("Password reset", zap.String("userID", userID), zap.String("requestID", middleware.RequestID(c)))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Password updated successfully",
	})
}
