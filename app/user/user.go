// Package user contains the account endpoints of a logged in user
package user

import (
	"arc/auth-api/internal"
	"arc/auth-api/internal/service"
	"arc/auth-api/pkg/middleware"
	"arc/auth-api/pkg/security"
	"arc/auth-api/pkg/validators"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type updateBody struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Country   string `json:"country"`
	Timezone  string `json:"timezone"`
}

// Update edits the profile of the session user and returns it
func Update(c *gin.Context, d *internal.Deps) {
	requestID := middleware.RequestID(c)

	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated", "requestID": requestID})
		return
	}

	var data updateBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "requestID": requestID})
		return
	}

	data.Country = strings.ToUpper(strings.TrimSpace(data.Country))

	for _, err := range []error{
		validators.NameValidator(data.FirstName, data.LastName),
		validators.CountryValidator(data.Country),
		validators.TimezoneValidator(data.Timezone),
	} {
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "requestID": requestID})
			return
		}
	}

	u := service.ProfileUpdate{
		FirstName: strings.TrimSpace(data.FirstName),
		LastName:  strings.TrimSpace(data.LastName),
		Country:   data.Country,
	}
	if data.Timezone != "" {
		u.Timezone = &data.Timezone
	}

	profile, err := d.Users.UpdateProfile(c.Request.Context(), claims.UserID, u)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) || errors.Is(err, security.ErrIntegrity) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "requestID": requestID})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "requestID": requestID})
		zap.L().Error("Failed to update profile", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, profile)
}
