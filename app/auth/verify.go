package auth

import (
	"arc/auth-api/internal"
	"arc/auth-api/internal/service"
	"arc/auth-api/pkg/middleware"
	"arc/auth-api/pkg/security"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const resendMessage = "If that account exists and is not verified yet, a new verification link was sent."

// Verify consumes a verification token. A session issued before this call
// keeps reporting emailVerified false until the user logs in again.
func Verify(c *gin.Context, d *internal.Deps) {
	token := c.Query("token")
	if token == "" {
		badRequest(c, invalidLink)
		return
	}

	ctx := c.Request.Context()

	// The token is only burned if the user record was updated
	var userID string
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error

		userID, err = d.Tokens.WithTx(tx).Consume(ctx, token, security.PurposeVerifyEmail)
		if err != nil {
			return err
		}

		return d.Users.WithTx(tx).MarkEmailVerified(ctx, userID)
	})
	if err != nil {
		if isTokenError(err) || errors.Is(err, service.ErrNotFound) {
			badRequest(c, invalidLink)
			return
		}

		internalError(c, "Failed to verify email", err)
		return
	}

	zap.L().Info("Email verified", zap.String("userID", userID), zap.String("requestID", middleware.RequestID(c)))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Email verified successfully",
	})
}

type emailBody struct {
	Email string `json:"email"`
}

// ResendVerification mails a fresh verification link. The answer is the same
// whether or not the email is registered.
func ResendVerification(c *gin.Context, d *internal.Deps) {
	requestID := middleware.RequestID(c)

	var data emailBody
	if err := c.ShouldBindJSON(&data); err != nil || data.Email == "" {
		badRequest(c, "Invalid email address")
		return
	}

	user, _, err := d.Users.FindByEmail(c.Request.Context(), data.Email)
	switch {
	case err == nil && !user.EmailVerified:
		if err := sendVerification(c, d, user); err != nil {
			zap.L().Error("Failed to resend verification email", zap.Error(err), zap.String("requestID", requestID))
		}
	case err == nil, errors.Is(err, service.ErrNotFound), errors.Is(err, security.ErrIntegrity):
	default:
		internalError(c, "Failed to find user", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": resendMessage,
	})
}
