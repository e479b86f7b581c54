package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"attendance-backend/internal/errdef"
	"attendance-backend/internal/model"
)

// Store defines the interface for all database operations.
// Lookups of single rows return an errdef not-found error when the row is absent.
// Every other storage failure is returned as an errdef retryable error.
type Store interface {
	// Gatherings
	GetGathering(ctx context.Context, id int64) (*model.Gathering, error)
	DeactivateExpiredGatherings(ctx context.Context, now time.Time) (int64, error)
	ClosedGatheringsWithNoShows(ctx context.Context, now time.Time) ([]int64, error)

	// Participants
	GetParticipant(ctx context.Context, id int64) (*model.Participant, error)
	ListEligibleParticipants(ctx context.Context) ([]model.Participant, error)

	// Registrations
	CreateRegistration(ctx context.Context, reg *model.Registration) (bool, error)
	MarkAttended(ctx context.Context, participantID, gatheringID int64) error
	ListNoShows(ctx context.Context, gatheringID int64) ([]model.Registration, error)
	MarkPenalized(ctx context.Context, registrationID int64) (bool, error)

	// Attendance
	HasAttendance(ctx context.Context, participantID, gatheringID int64, kind model.AttendanceKind) (bool, error)
	FindAttendance(ctx context.Context, participantID, gatheringID int64, kind model.AttendanceKind) (*model.AttendanceRecord, error)
	AppendAttendanceRecord(ctx context.Context, rec *model.AttendanceRecord) (bool, error)

	// Ledger
	AppendPointEntry(ctx context.Context, entry *model.PointEntry) error
	SumPoints(ctx context.Context, participantID int64, month *int, year int) (int, error)
	SumPointsByParticipant(ctx context.Context, month *int, year int) (map[int64]int, error)
	ListPointEntries(ctx context.Context, participantID int64, limit int) ([]model.PointEntry, error)

	// Warnings
	GetWarningLevel(ctx context.Context, participantID int64) (model.WarningLevel, error)
	SetWarningLevel(ctx context.Context, participantID int64, level model.WarningLevel) error
	WarningLevels(ctx context.Context) (map[int64]model.WarningLevel, error)
	CreateEscalationRun(ctx context.Context, run *model.EscalationRun) error

	// Push subscriptions
	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, participantID int64, endpoint string) (*model.PushSubscription, error)
	ListSubscriptions(ctx context.Context, participantID int64) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error

	// Transaction runs fn against a Store bound to a single database transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// Transaction implements Store. Errors returned by fn are passed through unchanged;
// failures to begin or commit are reported as retryable.
func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&gormStore{db: tx})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return errdef.NewRetryable("failed to commit transaction: %w", err)
	}
	return err
}

func notFoundOr(err error, format string, a ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errdef.NewNotFound(format, a...)
	}
	return errdef.NewRetryable("failed to load "+format+": %w", append(a, err)...)
}
