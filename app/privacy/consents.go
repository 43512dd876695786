// Package privacy contains the consent history endpoints
package privacy

import (
	"arc/auth-api/internal"
	"arc/auth-api/internal/service"
	"arc/auth-api/pkg/middleware"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Consents returns every consent decision of the session user, oldest first
func Consents(c *gin.Context, d *internal.Deps) {
	requestID := middleware.RequestID(c)

	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":     "Not authenticated",
			"requestID": requestID,
		})
		return
	}

	consents, err := d.Consents.ListFor(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to list consents", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"consents": consents,
	})
}

// RecordConsent appends an accepted health data consent for the session
// user. Each call adds a new record.
func RecordConsent(c *gin.Context, d *internal.Deps) {
	requestID := middleware.RequestID(c)

	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":     "Not authenticated",
			"requestID": requestID,
		})
		return
	}

	consent, err := d.Consents.Append(c.Request.Context(), claims.UserID, service.ConsentMeta{
		Type:         service.ConsentHealthData,
		Mandatory:    true,
		Accepted:     true,
		LegalVersion: d.Config.Consent.LegalVersion,
		IPAddress:    c.ClientIP(),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Failed to record consent",
			"requestID": requestID,
		})

		zap.L().Error("Failed to record consent", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"consent": consent,
		"message": "Health data consent recorded successfully",
	})
}

type updateBody struct {
	Marketing      *bool `json:"marketing_emails"`
	ProductUpdates *bool `json:"product_updates"`
	DataResearch   *bool `json:"data_research"`
}

// Update records changes to the optional consents of the session user. Only
// the fields present in the body are appended; earlier records stay.
func Update(c *gin.Context, d *internal.Deps) {
	requestID := middleware.RequestID(c)

	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":     "Not authenticated",
			"requestID": requestID,
		})
		return
	}

	var data updateBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	var metas []service.ConsentMeta
	for _, f := range []struct {
		typ string
		v   *bool
	}{
		{service.ConsentMarketing, data.Marketing},
		{service.ConsentProductUpdates, data.ProductUpdates},
		{service.ConsentDataResearch, data.DataResearch},
	} {
		if f.v == nil {
			continue
		}

		metas = append(metas, service.ConsentMeta{
			Type:         f.typ,
			Accepted:     *f.v,
			LegalVersion: d.Config.Consent.LegalVersion,
			IPAddress:    c.ClientIP(),
		})
	}

	if len(metas) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No consent changes provided",
			"requestID": requestID,
		})
		return
	}

	if _, err := d.Consents.AppendMany(c.Request.Context(), claims.UserID, metas); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to update consents", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}
