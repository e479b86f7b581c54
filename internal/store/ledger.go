package store

import (
	"context"

	"attendance-backend/internal/errdef"
	"attendance-backend/internal/model"
)

func (s *gormStore) AppendPointEntry(ctx context.Context, entry *model.PointEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return errdef.NewRetryable("failed to append point entry: %w", err)
	}
	return nil
}

// SumPoints totals the participant's entries for the year, or for a single month when month is set.
func (s *gormStore) SumPoints(ctx context.Context, participantID int64, month *int, year int) (int, error) {
	var total int64
	q := s.db.WithContext(ctx).Model(&model.PointEntry{}).
		Select("COALESCE(SUM(delta), 0)").
		Where("participant_id = ? AND year = ?", participantID, year)
	if month != nil {
		q = q.Where("month = ?", *month)
	}
	if err := q.Scan(&total).Error; err != nil {
		return 0, errdef.NewRetryable("failed to sum points of participant %d: %w", participantID, err)
	}
	return int(total), nil
}

// SumPointsByParticipant totals every participant's entries in one query.
// Participants without entries are absent from the map.
func (s *gormStore) SumPointsByParticipant(ctx context.Context, month *int, year int) (map[int64]int, error) {
	var rows []ParticipantTotal
	q := s.db.WithContext(ctx).Model(&model.PointEntry{}).
		Select("participant_id, COALESCE(SUM(delta), 0) AS total").
		Where("year = ?", year)
	if month != nil {
		q = q.Where("month = ?", *month)
	}
	if err := q.Group("participant_id").Scan(&rows).Error; err != nil {
		return nil, errdef.NewRetryable("failed to sum points: %w", err)
	}

	totals := make(map[int64]int, len(rows))
	for _, r := range rows {
		totals[r.ParticipantID] = r.Total
	}
	return totals, nil
}

// ListPointEntries returns the newest entries of a participant first.
func (s *gormStore) ListPointEntries(ctx context.Context, participantID int64, limit int) ([]model.PointEntry, error) {
	var entries []model.PointEntry
	err := s.db.WithContext(ctx).
		Where("participant_id = ?", participantID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, errdef.NewRetryable("failed to list point entries: %w", err)
	}
	return entries, nil
}
