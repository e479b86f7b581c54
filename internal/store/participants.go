package store

import (
	"context"

	"gorm.io/gorm/clause"

	"attendance-backend/internal/errdef"
	"attendance-backend/internal/model"
)

func (s *gormStore) GetParticipant(ctx context.Context, id int64) (*model.Participant, error) {
	var p model.Participant
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFoundOr(err, "participant %d", id)
	}
	return &p, nil
}

// ListEligibleParticipants returns active participants ordered by id.
func (s *gormStore) ListEligibleParticipants(ctx context.Context) ([]model.Participant, error) {
	var ps []model.Participant
	err := s.db.WithContext(ctx).
		Where("status = ?", model.StatusActive).
		Order("id").
		Find(&ps).Error
	if err != nil {
		return nil, errdef.NewRetryable("failed to list eligible participants: %w", err)
	}
	return ps, nil
}

// CreateRegistration inserts reg unless the pair is already registered.
// It reports whether a new row was written.
func (s *gormStore) CreateRegistration(ctx context.Context, reg *model.Registration) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(reg)
	if res.Error != nil {
		return false, errdef.NewRetryable("failed to create registration: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *gormStore) MarkAttended(ctx context.Context, participantID, gatheringID int64) error {
	err := s.db.WithContext(ctx).Model(&model.Registration{}).
		Where("participant_id = ? AND gathering_id = ?", participantID, gatheringID).
		Update("attended", true).Error
	if err != nil {
		return errdef.NewRetryable("failed to mark registration attended: %w", err)
	}
	return nil
}

// ListNoShows returns the registrations of a gathering that were neither attended nor penalized.
func (s *gormStore) ListNoShows(ctx context.Context, gatheringID int64) ([]model.Registration, error) {
	var regs []model.Registration
	err := s.db.WithContext(ctx).
		Where("gathering_id = ? AND attended = ? AND penalized = ?", gatheringID, false, false).
		Order("participant_id").
		Find(&regs).Error
	if err != nil {
		return nil, errdef.NewRetryable("failed to list no-shows: %w", err)
	}
	return regs, nil
}

// MarkPenalized sets the penalized flag and reports whether this call was the one that set it.
func (s *gormStore) MarkPenalized(ctx context.Context, registrationID int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Registration{}).
		Where("id = ? AND penalized = ?", registrationID, false).
		Update("penalized", true)
	if res.Error != nil {
		return false, errdef.NewRetryable("failed to mark registration %d penalized: %w", registrationID, res.Error)
	}
	return res.RowsAffected > 0, nil
}
