// Package storetest opens throwaway SQLite-backed stores for tests.
package storetest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"attendance-backend/internal/db"
	"attendance-backend/internal/model"
	"attendance-backend/internal/store"
)

// New returns a migrated store over a private in-memory database. The pool is
// limited to one connection so concurrent writers queue instead of failing
// with a locked table.
func New(t testing.TB) (store.Store, *gorm.DB) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return store.NewGormStore(gdb), gdb
}

// Participant inserts a participant with the given status.
func Participant(t testing.TB, gdb *gorm.DB, id int64, status model.ParticipantStatus) model.Participant {
	t.Helper()
	p := model.Participant{ID: id, FullName: "Participant " + uuid.NewString()[:8], Status: status}
	require.NoError(t, gdb.Create(&p).Error)
	return p
}

// Gathering inserts an active gathering at (lat, lon) open during [opens, closes].
func Gathering(t testing.TB, gdb *gorm.DB, lat, lon, radius float64, opens, closes time.Time, points int) model.Gathering {
	t.Helper()
	g := model.Gathering{
		Title:        "Gathering " + uuid.NewString()[:8],
		Latitude:     &lat,
		Longitude:    &lon,
		RadiusMeters: radius,
		OpensAt:      &opens,
		ClosesAt:     &closes,
		Points:       points,
		Active:       true,
	}
	require.NoError(t, gdb.Create(&g).Error)
	return g
}

// Entry inserts a ledger entry dated in the given period.
func Entry(t testing.TB, gdb *gorm.DB, participantID int64, delta, month, year int) {
	t.Helper()
	e := model.PointEntry{
		ParticipantID: participantID,
		Delta:         delta,
		Reason:        "seed",
		Source:        model.SourceManualEvidence,
		Month:         month,
		Year:          year,
		CreatedAt:     time.Date(year, time.Month(month), 15, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, gdb.Create(&e).Error)
}
