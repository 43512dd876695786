package service

import (
	"arc/auth-api/internal/model"
	"context"
	"time"

	"go.uber.org/zap"
)

// Purge deletes tokens that expired, or were used, before cutoff. Tokens
// inside the retention window stay so Consume can still classify them.
func (s *OneTimeTokens) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoff = cutoff.UTC()

	r := s.db.WithContext(ctx).
		Where("expires_at < ? OR (used = ? AND used_at < ?)", cutoff, true, cutoff).
		Delete(&model.OneTimeToken{})
	if r.Error != nil {
		return 0, storageErr("purge one-time tokens", r.Error)
	}

	return r.RowsAffected, nil
}

// StartCleanup purges tokens older than retention every interval until ctx
// is done
func (s *OneTimeTokens) StartCleanup(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)

	zap.L().Debug("Token cleanup attached", zap.Duration("tick_every", interval), zap.Duration("retention", retention))

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.Purge(ctx, s.now().Add(-retention))
				if err != nil {
					zap.L().Error("Failed to clean up one-time tokens", zap.Error(err))
					continue
				}

				if n > 0 {
					zap.L().Debug("Cleaned up one-time tokens", zap.Int64("count", n))
				}
			}
		}
	}()
}
