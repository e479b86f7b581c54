package store

import (
	"context"

	"gorm.io/gorm/clause"

	"attendance-backend/internal/errdef"
	"attendance-backend/internal/model"
)

// SaveSubscription creates or replaces the subscription for its endpoint.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"participant_id", "p256dh", "auth"}),
	}).Create(sub).Error
	if err != nil {
		return errdef.NewRetryable("failed to save subscription: %w", err)
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, participantID int64, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).
		Where("participant_id = ? AND endpoint = ?", participantID, endpoint).
		First(&sub).Error
	if err != nil {
		return nil, notFoundOr(err, "subscription of participant %d", participantID)
	}
	return &sub, nil
}

func (s *gormStore) ListSubscriptions(ctx context.Context, participantID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("participant_id = ?", participantID).Find(&subs).Error; err != nil {
		return nil, errdef.NewRetryable("failed to list subscriptions of participant %d: %w", participantID, err)
	}
	return subs, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return errdef.NewRetryable("failed to delete subscription: %w", err)
	}
	return nil
}
