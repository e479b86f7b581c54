package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"attendance-backend/internal/errdef"
	"attendance-backend/internal/model"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestGormStore_AppendAttendanceRecord(t *testing.T) {
	now := time.Now()

	testCases := []struct {
		name             string
		mockExpectations func(mock sqlmock.Sqlmock)
		expectedWritten  bool
		expectedErr      bool
	}{
		{
			name: "First record of its kind is written",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "attendance_records"`)).
					WithArgs(11, 22, "check_in", Any{}, Any{}, Any{}).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
				mock.ExpectCommit()
			},
			expectedWritten: true,
		},
		{
			name: "Duplicate is skipped by the conflict clause",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT DO NOTHING`)).
					WithArgs(11, 22, "check_in", Any{}, Any{}, Any{}).
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
				mock.ExpectCommit()
			},
			expectedWritten: false,
		},
		{
			name: "Storage failure is retryable",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "attendance_records"`)).
					WillReturnError(errors.New("connection reset"))
				mock.ExpectRollback()
			},
			expectedErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newTestDB(t)
			store := NewGormStore(gormDB)

			tc.mockExpectations(mock)

			written, err := store.AppendAttendanceRecord(context.Background(), &model.AttendanceRecord{
				ParticipantID: 11,
				GatheringID:   22,
				Kind:          model.KindCheckIn,
				Timestamp:     now,
			})

			if tc.expectedErr {
				assert.Error(t, err)
				assert.True(t, errdef.IsRetryable(err))
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expectedWritten, written)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_SumPoints(t *testing.T) {
	month := 3

	testCases := []struct {
		name             string
		month            *int
		mockExpectations func(mock sqlmock.Sqlmock)
		expected         int
	}{
		{
			name:  "Monthly total",
			month: &month,
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(delta), 0) FROM "point_entries" WHERE (participant_id = $1 AND year = $2) AND month = $3`)).
					WithArgs(7, 2025, 3).
					WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(42))
			},
			expected: 42,
		},
		{
			name: "Yearly total",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(delta), 0) FROM "point_entries" WHERE participant_id = $1 AND year = $2`)).
					WithArgs(7, 2025).
					WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(-5))
			},
			expected: -5,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newTestDB(t)
			store := NewGormStore(gormDB)

			tc.mockExpectations(mock)

			total, err := store.SumPoints(context.Background(), 7, tc.month, 2025)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, total)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_GetGatheringNotFound(t *testing.T) {
	gormDB, mock := newTestDB(t)
	store := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "gatherings" WHERE "gatherings"."id" = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	g, err := store.GetGathering(context.Background(), 9)
	assert.Nil(t, g)
	assert.True(t, errdef.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_CreateEscalationRunConflict(t *testing.T) {
	gormDB, mock := newTestDB(t)
	store := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "escalation_runs"`)).
		WithArgs(4, 2025, 2, Any{}).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	err := store.CreateEscalationRun(context.Background(), &model.EscalationRun{Month: 4, Year: 2025, Changed: 2})
	assert.True(t, errdef.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_DeactivateExpiredGatherings(t *testing.T) {
	gormDB, mock := newTestDB(t)
	store := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "gatherings" SET "active"=$1`)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := store.DeactivateExpiredGatherings(context.Background(), time.Now())
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_Transaction(t *testing.T) {
	t.Run("Error from fn rolls back and is returned unchanged", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		store := NewGormStore(gormDB)
		boom := errors.New("boom")

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := store.Transaction(context.Background(), func(tx Store) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.False(t, errdef.IsRetryable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Commit failure is retryable", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		store := NewGormStore(gormDB)

		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		err := store.Transaction(context.Background(), func(tx Store) error { return nil })
		assert.True(t, errdef.IsRetryable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// Any is a helper for sqlmock to match any argument.
type Any struct{}

// Match satisfies the sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}
