package store

import (
	"context"

	"gorm.io/gorm/clause"

	"attendance-backend/internal/errdef"
	"attendance-backend/internal/model"
)

// GetWarningLevel returns WarningNone for participants without a stored level.
func (s *gormStore) GetWarningLevel(ctx context.Context, participantID int64) (model.WarningLevel, error) {
	var states []model.WarningState
	err := s.db.WithContext(ctx).
		Where("participant_id = ?", participantID).
		Limit(1).
		Find(&states).Error
	if err != nil {
		return "", errdef.NewRetryable("failed to load warning level of participant %d: %w", participantID, err)
	}
	if len(states) == 0 {
		return model.WarningNone, nil
	}
	return states[0].Level, nil
}

func (s *gormStore) SetWarningLevel(ctx context.Context, participantID int64, level model.WarningLevel) error {
	state := model.WarningState{ParticipantID: participantID, Level: level}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "participant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"level", "updated_at"}),
	}).Create(&state).Error
	if err != nil {
		return errdef.NewRetryable("failed to set warning level of participant %d: %w", participantID, err)
	}
	return nil
}

func (s *gormStore) WarningLevels(ctx context.Context) (map[int64]model.WarningLevel, error) {
	var states []model.WarningState
	if err := s.db.WithContext(ctx).Find(&states).Error; err != nil {
		return nil, errdef.NewRetryable("failed to load warning levels: %w", err)
	}
	levels := make(map[int64]model.WarningLevel, len(states))
	for _, st := range states {
		levels[st.ParticipantID] = st.Level
	}
	return levels, nil
}

// CreateEscalationRun records that a month has been escalated. A second run for
// the same month is reported as a conflict.
func (s *gormStore) CreateEscalationRun(ctx context.Context, run *model.EscalationRun) error {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(run)
	if res.Error != nil {
		return errdef.NewRetryable("failed to record escalation run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errdef.NewConflict("escalation for %02d/%d has already run", run.Month, run.Year)
	}
	return nil
}
