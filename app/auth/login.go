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
)

const invalidCredentials = "Invalid email or password"

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func Login(c *gin.Context, d *internal.Deps) {
	requestID := middleware.RequestID(c)

	var data loginBody
	if err := c.ShouldBindJSON(&data); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if data.Email == "" || data.Password == "" {
		badRequest(c, invalidCredentials)
		return
	}

	user, hash, err := d.Users.FindByEmail(c.Request.Context(), data.Email)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) || errors.Is(err, security.ErrIntegrity) {
			badRequest(c, invalidCredentials)
			return
		}

		internalError(c, "Failed to find user", err)
		return
	}

	ok, err := d.Argon.Verify(data.Password, hash)
	if err != nil {
		internalError(c, "Failed to verify password", err)
		return
	}

	if !ok {
		badRequest(c, invalidCredentials)
		return
	}

	if !user.EmailVerified {
		c.JSON(http.StatusForbidden, gin.H{
			"error":     "Please verify your email before logging in",
			"requestID": requestID,
		})
		return
	}

	token, err := d.Sessions.Issue(security.SessionClaims{
		UserID:        user.ID,
		EmailVerified: user.EmailVerified,
	}, d.Config.Session.TTL)
	if err != nil {
		internalError(c, "Failed to issue session token", err)
		return
	}

	setSession(c, d, token)

	zap.L().Info("User logged in", zap.String("userID", user.ID), zap.String("requestID", requestID))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Login successful",
	})
}

// Logout clears the session cookie. It needs no session and always succeeds.
func Logout(c *gin.Context, d *internal.Deps) {
	clearSession(c, d)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}
