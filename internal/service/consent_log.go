package service

import (
	"arc/auth-api/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Consent types recorded by the platform
const (
	ConsentHealthData     = "health_data_processing"
	ConsentDataTransfer   = "international_data_transfer"
	ConsentTermsPrivacy   = "terms_privacy"
	ConsentAgeConfirmed   = "age_confirmed_18"
	ConsentMarketing      = "marketing_emails"
	ConsentProductUpdates = "product_updates"
	ConsentDataResearch   = "data_research"
)

type ConsentMeta struct {
	Type         string
	Mandatory    bool
	Accepted     bool
	LegalVersion string
	IPAddress    string
	Purpose      *string
	ExpiresAt    *time.Time
	Timestamp    time.Time // now when zero
}

// ConsentLog is an append-only record of consent decisions. It has no update
// or delete; a withdrawal is a new record with Accepted false.
type ConsentLog struct {
	db  *gorm.DB
	now func() time.Time
}

func NewConsentLog(db *gorm.DB) *ConsentLog {
	return &ConsentLog{db: db, now: time.Now}
}

// WithTx returns a copy of l that writes inside tx
func (l *ConsentLog) WithTx(tx *gorm.DB) *ConsentLog {
	return &ConsentLog{db: tx, now: l.now}
}

func (l *ConsentLog) Append(ctx context.Context, userID string, m ConsentMeta) (model.Consent, error) {
	recs, err := l.AppendMany(ctx, userID, []ConsentMeta{m})
	if err != nil {
		return model.Consent{}, err
	}

	return recs[0], nil
}

// AppendMany writes all records in one insert
func (l *ConsentLog) AppendMany(ctx context.Context, userID string, ms []ConsentMeta) ([]model.Consent, error) {
	if userID == "" {
		return nil, ErrNoUserID
	}

	if len(ms) == 0 {
		return nil, nil
	}

	now := l.now().UTC()

	recs := make([]model.Consent, len(ms))
	for i, m := range ms {
		ts := m.Timestamp
		if ts.IsZero() {
			ts = now
		}

		recs[i] = model.Consent{
			UserID:       userID,
			Type:         m.Type,
			Mandatory:    m.Mandatory,
			Accepted:     m.Accepted,
			LegalVersion: m.LegalVersion,
			IPAddress:    m.IPAddress,
			Purpose:      m.Purpose,
			ExpiresAt:    m.ExpiresAt,
			Timestamp:    ts.UTC(),
		}
	}

	if err := l.db.WithContext(ctx).Create(&recs).Error; err != nil {
		return nil, storageErr("append consent", err)
	}

	return recs, nil
}

// ListFor returns every consent of userID, oldest first
func (l *ConsentLog) ListFor(ctx context.Context, userID string) ([]model.Consent, error) {
	recs := []model.Consent{}

	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "timestamp"}},
			{Column: clause.Column{Name: "id"}},
		}}).
		Find(&recs).
		Error
	if err != nil {
		return nil, storageErr("list consents", err)
	}

	return recs, nil
}
