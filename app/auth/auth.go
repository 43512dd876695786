// Package auth contains the registration, login, session and one-time token
// endpoints
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

// Every one-time token failure answers with this message so a caller can't
// tell an unknown link from an expired or used one.
const invalidLink = "This link is invalid or has expired"

func internalError(c *gin.Context, msg string, err error) {
	requestID := middleware.RequestID(c)

	c.JSON(http.StatusInternalServerError, gin.H{
		"error":     "Internal server error",
		"requestID": requestID,
	})

	zap.L().Error(msg, zap.Error(err), zap.String("requestID", requestID))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":     msg,
		"requestID": middleware.RequestID(c),
	})
}

func isTokenError(err error) bool {
	return errors.Is(err, service.ErrTokenNotFound) ||
		errors.Is(err, service.ErrTokenExpired) ||
		errors.Is(err, service.ErrTokenConsumed)
}

func setSession(c *gin.Context, d *internal.Deps, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(d.Config.Session.CookieName, token, int(d.Config.Session.TTL.Seconds()), "/", "", d.Config.Host.SSL.Enabled, true)
}

func clearSession(c *gin.Context, d *internal.Deps) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(d.Config.Session.CookieName, "", -1, "/", "", d.Config.Host.SSL.Enabled, true)
}

// sendVerification issues a verification token and mails it to email
func sendVerification(c *gin.Context, d *internal.Deps, p service.Profile) error {
	ttl := d.Config.Tokens.VerifyTTL

	_, err := d.Tokens.IssueAndSend(c.Request.Context(), p.ID, security.PurposeVerifyEmail, ttl, func(token string) error {
		subject, body := service.VerificationMail(d.Config.App.PublicURL, p.FirstName, token, ttl)
		return d.Mailer.Send(p.Email, subject, body)
	})

	return err
}
