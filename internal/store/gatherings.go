package store

import (
	"context"
	"time"

	"attendance-backend/internal/errdef"
	"attendance-backend/internal/model"
)

func (s *gormStore) GetGathering(ctx context.Context, id int64) (*model.Gathering, error) {
	var g model.Gathering
	if err := s.db.WithContext(ctx).First(&g, id).Error; err != nil {
		return nil, notFoundOr(err, "gathering %d", id)
	}
	return &g, nil
}

// DeactivateExpiredGatherings flips active gatherings whose closing time has passed.
func (s *gormStore) DeactivateExpiredGatherings(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Gathering{}).
		Where("active = ? AND closes_at IS NOT NULL AND closes_at < ?", true, now).
		Update("active", false)
	if res.Error != nil {
		return 0, errdef.NewRetryable("failed to deactivate expired gatherings: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ClosedGatheringsWithNoShows lists closed gatherings that still have registrations
// neither attended nor penalized.
func (s *gormStore) ClosedGatheringsWithNoShows(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&model.Gathering{}).
		Distinct("gatherings.id").
		Joins("JOIN registrations ON registrations.gathering_id = gatherings.id").
		Where("gatherings.closes_at IS NOT NULL AND gatherings.closes_at < ?", now).
		Where("registrations.attended = ? AND registrations.penalized = ?", false, false).
		Order("gatherings.id").
		Pluck("gatherings.id", &ids).Error
	if err != nil {
		return nil, errdef.NewRetryable("failed to list closed gatherings: %w", err)
	}
	return ids, nil
}
