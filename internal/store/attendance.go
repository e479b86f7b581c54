package store

import (
	"context"

	"gorm.io/gorm/clause"

	"attendance-backend/internal/errdef"
	"attendance-backend/internal/model"
)

func (s *gormStore) HasAttendance(ctx context.Context, participantID, gatheringID int64, kind model.AttendanceKind) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.AttendanceRecord{}).
		Where("participant_id = ? AND gathering_id = ? AND kind = ?", participantID, gatheringID, kind).
		Count(&n).Error
	if err != nil {
		return false, errdef.NewRetryable("failed to check %s record: %w", kind, err)
	}
	return n > 0, nil
}

// FindAttendance returns the record of the given kind, or nil when there is none.
func (s *gormStore) FindAttendance(ctx context.Context, participantID, gatheringID int64, kind model.AttendanceKind) (*model.AttendanceRecord, error) {
	var recs []model.AttendanceRecord
	err := s.db.WithContext(ctx).
		Where("participant_id = ? AND gathering_id = ? AND kind = ?", participantID, gatheringID, kind).
		Limit(1).
		Find(&recs).Error
	if err != nil {
		return nil, errdef.NewRetryable("failed to load %s record: %w", kind, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// AppendAttendanceRecord inserts rec unless a record of the same kind already exists
// for the pair. It reports whether rec was written.
func (s *gormStore) AppendAttendanceRecord(ctx context.Context, rec *model.AttendanceRecord) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return false, errdef.NewRetryable("failed to append %s record: %w", rec.Kind, res.Error)
	}
	return res.RowsAffected > 0, nil
}
