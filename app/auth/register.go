package auth

import (
	"arc/auth-api/internal"
	"arc/auth-api/internal/service"
	"arc/auth-api/pkg/middleware"
	"arc/auth-api/pkg/validators"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type registerBody struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Country   string `json:"country"`
	Timezone  string `json:"timezone"`

	MandatoryConsents struct {
		HealthData   bool `json:"healthData"`
		DataTransfer bool `json:"dataTransfer"`
		Terms        bool `json:"terms"`
		AgeConfirmed bool `json:"ageConfirmed"`
	} `json:"mandatoryConsents"`

	OptionalConsents struct {
		Marketing      *bool `json:"marketing"`
		ProductUpdates *bool `json:"productUpdates"`
		DataResearch   *bool `json:"dataResearch"`
	} `json:"optionalConsents"`
}

func Register(c *gin.Context, d *internal.Deps) {
	requestID := middleware.RequestID(c)

	var data registerBody
	if err := c.ShouldBindJSON(&data); err != nil {
		if middleware.TooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body size exceeds limit", "requestID": requestID})
			return
		}

		badRequest(c, "Invalid request body")
		return
	}

	data.Email = strings.TrimSpace(data.Email)
	data.Country = strings.ToUpper(strings.TrimSpace(data.Country))

	for _, err := range []error{
		validators.NameValidator(data.FirstName, data.LastName),
		validators.EmailValidator(data.Email),
		validators.PasswordValidator(data.Password),
		validators.CountryValidator(data.Country),
		validators.TimezoneValidator(data.Timezone),
	} {
		if err != nil {
			zap.L().Debug("Invalid registration", zap.Error(err), zap.String("requestID", requestID))
			badRequest(c, err.Error())
			return
		}
	}

	mc := data.MandatoryConsents
	if !mc.HealthData || !mc.DataTransfer || !mc.Terms || !mc.AgeConfirmed {
		badRequest(c, "All mandatory consents must be accepted")
		return
	}

	hash, err := d.Argon.Hash(data.Password)
	if err != nil {
		internalError(c, "Failed to hash password", err)
		return
	}

	nu := service.NewUser{
		FirstName:    strings.TrimSpace(data.FirstName),
		LastName:     strings.TrimSpace(data.LastName),
		Email:        data.Email,
		PasswordHash: hash,
		Country:      &data.Country,
	}
	if data.Timezone != "" {
		nu.Timezone = &data.Timezone
	}

	ctx := c.Request.Context()
	consents := registrationConsents(data, d.Config.Consent.LegalVersion, c.ClientIP())

	// The account and its consent evidence are written together or not at all
	var user service.Profile
	err = d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error

		user, err = d.Users.WithTx(tx).Create(ctx, nu)
		if err != nil {
			return err
		}

		_, err = d.Consents.WithTx(tx).AppendMany(ctx, user.ID, consents)
		return err
	})
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{
				"error":     "This email is already registered. Please login or use a different email",
				"requestID": requestID,
			})
			return
		}

		internalError(c, "Failed to create user", err)
		return
	}

	// The account exists at this point. A failed mail is recoverable through
	// the resend endpoint, so it doesn't fail the registration.
	if err := sendVerification(c, d, user); err != nil {
		zap.L().Error("Failed to send verification email", zap.Error(err), zap.String("requestID", requestID))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Account created. Please check your email to verify your account.",
	})
}

// registrationConsents returns the mandatory consents followed by the
// optional ones. Optional consents default to accepted, except for EU and UK
// residents where they are always off.
func registrationConsents(data registerBody, legalVersion, ip string) []service.ConsentMeta {
	eu := validators.IsEUOrUK(data.Country)

	optional := func(v *bool) bool {
		if eu {
			return false
		}

		return v == nil || *v
	}

	meta := func(t string, mandatory, accepted bool) service.ConsentMeta {
		return service.ConsentMeta{
			Type:         t,
			Mandatory:    mandatory,
			Accepted:     accepted,
			LegalVersion: legalVersion,
			IPAddress:    ip,
		}
	}

	oc := data.OptionalConsents

	return []service.ConsentMeta{
		meta(service.ConsentHealthData, true, true),
		meta(service.ConsentDataTransfer, true, true),
		meta(service.ConsentTermsPrivacy, true, true),
		meta(service.ConsentAgeConfirmed, true, true),
		meta(service.ConsentMarketing, false, optional(oc.Marketing)),
		meta(service.ConsentProductUpdates, false, optional(oc.ProductUpdates)),
		meta(service.ConsentDataResearch, false, optional(oc.DataResearch)),
	}
}
