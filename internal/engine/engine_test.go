package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"attendance-backend/internal/anticheat"
	"attendance-backend/internal/attendance"
	"attendance-backend/internal/errdef"
	"attendance-backend/internal/geofence"
	"attendance-backend/internal/model"
	"attendance-backend/internal/scoring"
	"attendance-backend/internal/store"
	"attendance-backend/internal/store/storetest"
	"attendance-backend/internal/verdict"
)

var (
	venue = geofence.Coordinate{Latitude: 21.0285, Longitude: 105.8542}
	near  = geofence.Coordinate{Latitude: 21.0286, Longitude: 105.8542}
	far   = geofence.Coordinate{Latitude: 21.0300, Longitude: 105.8550}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	changes []scoring.WarningChange
}

func (n *recordingNotifier) NotifyWarningChange(c scoring.WarningChange) {
	n.changes = append(n.changes, c)
}

type fixture struct {
	engine   *Engine
	store    store.Store
	db       *gorm.DB
	clock    *clock
	notifier *recordingNotifier
	g        model.Gathering
}

func newEngine(s store.Store, c *clock, n Notifier) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validator := anticheat.NewValidator(anticheat.DefaultConfig(), anticheat.NewMemoryWindowStore(time.Minute), logger, c.Now)
	ledger := scoring.NewLedger(s, scoring.Config{LowScoreThreshold: 15, NoShowPenalty: 5, Location: time.UTC}, logger, c.Now)
	machine := attendance.NewMachine(s, ledger, 30*time.Minute, logger, c.Now)
	return New(s, validator, machine, ledger, n, Config{DefaultRadiusMeters: 50}, logger, c.Now)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, gdb := storetest.New(t)
	c := &clock{now: time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)}
	n := &recordingNotifier{}

	storetest.Participant(t, gdb, 1, model.StatusActive)
	storetest.Participant(t, gdb, 2, model.StatusPending)
	storetest.Participant(t, gdb, 3, model.StatusBanned)
	g := storetest.Gathering(t, gdb, venue.Latitude, venue.Longitude, 50, c.now.Add(-time.Hour), c.now.Add(3*time.Hour), 10)

	return &fixture{engine: newEngine(s, c, n), store: s, db: gdb, clock: c, notifier: n, g: g}
}

func (f *fixture) submission(participantID int64, at geofence.Coordinate) Submission {
	return Submission{
		Submission: anticheat.Submission{
			ParticipantID: participantID,
			Coordinate:    at,
			SentAt:        f.clock.Now(),
		},
		GatheringID: f.g.ID,
	}
}

func TestSubmitLocation_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.engine.SubmitLocation(ctx, f.submission(1, near))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, verdict.OK, out.Code)
	assert.Equal(t, model.KindCheckIn, out.Kind)
	require.NotNil(t, out.DistanceMeters)
	assert.Less(t, *out.DistanceMeters, 50.0)
	assert.Nil(t, out.PointsAwarded)

	f.clock.Advance(10 * time.Minute)
	out, err = f.engine.SubmitLocation(ctx, f.submission(1, near))
	require.NoError(t, err)
	assert.False(t, out.Accepted)
	assert.Equal(t, verdict.TooSoon, out.Code)
	assert.Equal(t, model.KindCheckOut, out.Kind)
	require.NotNil(t, out.RemainingWaitSeconds)
	assert.Equal(t, 20*60, *out.RemainingWaitSeconds)
	assert.Nil(t, out.PointsAwarded)

	f.clock.Advance(21 * time.Minute)
	out, err = f.engine.SubmitLocation(ctx, f.submission(1, near))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, model.KindCheckOut, out.Kind)
	require.NotNil(t, out.PointsAwarded)
	assert.Equal(t, 10, *out.PointsAwarded)
	require.NotNil(t, out.DwellMinutes)
	assert.InDelta(t, 31.0, *out.DwellMinutes, 0.01)

	out, err = f.engine.SubmitLocation(ctx, f.submission(1, near))
	require.NoError(t, err)
	assert.Equal(t, verdict.AlreadyCheckedOut, out.Code)
}

func TestSubmitLocation_Rejections(t *testing.T) {
	testCases := []struct {
		name  string
		build func(f *fixture) Submission
		code  verdict.Code
	}{
		{
			name:  "unregistered participant",
			build: func(f *fixture) Submission { return f.submission(99, near) },
			code:  verdict.NotRegistered,
		},
		{
			name:  "pending participant",
			build: func(f *fixture) Submission { return f.submission(2, near) },
			code:  verdict.ParticipantPending,
		},
		{
			name:  "banned participant",
			build: func(f *fixture) Submission { return f.submission(3, near) },
			code:  verdict.ParticipantBanned,
		},
		{
			name: "latitude out of range",
			build: func(f *fixture) Submission {
				return f.submission(1, geofence.Coordinate{Latitude: 91, Longitude: 0})
			},
			code: verdict.InvalidCoordinates,
		},
		{
			name: "forwarded and far away",
			build: func(f *fixture) Submission {
				s := f.submission(1, far)
				s.Forwarded = true
				return s
			},
			code: verdict.Forwarded,
		},
		{
			name: "stale",
			build: func(f *fixture) Submission {
				s := f.submission(1, near)
				s.SentAt = f.clock.Now().Add(-61 * time.Second)
				return s
			},
			code: verdict.Stale,
		},
		{
			name: "unknown gathering",
			build: func(f *fixture) Submission {
				s := f.submission(1, near)
				s.GatheringID = 999
				return s
			},
			code: verdict.GatheringNotFound,
		},
		{
			name:  "out of radius",
			build: func(f *fixture) Submission { return f.submission(1, far) },
			code:  verdict.OutOfRadius,
		},
		{
			name: "explicit check-out before check-in",
			build: func(f *fixture) Submission {
				s := f.submission(1, near)
				s.Action = ActionCheckOut
				return s
			},
			code: verdict.NotCheckedIn,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)

			out, err := f.engine.SubmitLocation(context.Background(), tc.build(f))
			require.NoError(t, err)
			assert.False(t, out.Accepted)
			assert.Equal(t, tc.code, out.Code)
			assert.NotEmpty(t, out.Message)

			var n int64
			require.NoError(t, f.db.Model(&model.AttendanceRecord{}).Count(&n).Error)
			assert.Zero(t, n)
		})
	}
}

func TestSubmitLocation_OutOfRadiusReportsDistance(t *testing.T) {
	f := newFixture(t)

	out, err := f.engine.SubmitLocation(context.Background(), f.submission(1, far))
	require.NoError(t, err)
	require.NotNil(t, out.DistanceMeters)
	assert.InDelta(t, 186.32, *out.DistanceMeters, 0.05)
}

func TestSubmitLocation_ForwardedWinsOverBadCoordinates(t *testing.T) {
	f := newFixture(t)

	s := f.submission(1, geofence.Coordinate{Latitude: 200, Longitude: 105.8542})
	s.Forwarded = true
	out, err := f.engine.SubmitLocation(context.Background(), s)

	require.NoError(t, err)
	assert.False(t, out.Accepted)
	assert.Equal(t, verdict.Forwarded, out.Code)
}

func TestSubmitLocation_BadCoordinatesCountTowardsRateLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out, err := f.engine.SubmitLocation(ctx, f.submission(1, geofence.Coordinate{Latitude: 200, Longitude: 0}))
		require.NoError(t, err)
		require.Equal(t, verdict.InvalidCoordinates, out.Code)
	}

	out, err := f.engine.SubmitLocation(ctx, f.submission(1, near))
	require.NoError(t, err)
	assert.Equal(t, verdict.RateLimited, out.Code)
}

func TestSubmitLocation_RateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out, err := f.engine.SubmitLocation(ctx, f.submission(1, far))
		require.NoError(t, err)
		require.Equal(t, verdict.OutOfRadius, out.Code)
		f.clock.Advance(time.Second)
	}

	out, err := f.engine.SubmitLocation(ctx, f.submission(1, near))
	require.NoError(t, err)
	assert.Equal(t, verdict.RateLimited, out.Code)

	f.clock.Advance(61 * time.Second)
	out, err = f.engine.SubmitLocation(ctx, f.submission(1, near))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
}

func TestSubmitLocation_MisconfiguredGathering(t *testing.T) {
	f := newFixture(t)
	g := model.Gathering{Title: "No venue", RadiusMeters: 50, Points: 5, Active: true}
	require.NoError(t, f.db.Create(&g).Error)

	s := f.submission(1, near)
	s.GatheringID = g.ID
	out, err := f.engine.SubmitLocation(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, verdict.GatheringMisconfigured, out.Code)
}

func TestSubmitLocation_DefaultRadius(t *testing.T) {
	f := newFixture(t)
	opens, closes := f.clock.Now().Add(-time.Hour), f.clock.Now().Add(time.Hour)
	g := model.Gathering{
		Title: "Unsized", Latitude: &venue.Latitude, Longitude: &venue.Longitude,
		OpensAt: &opens, ClosesAt: &closes, Points: 5, Active: true,
	}
	require.NoError(t, f.db.Create(&g).Error)

	s := f.submission(1, near)
	s.GatheringID = g.ID
	out, err := f.engine.SubmitLocation(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, out.Accepted)
}

func TestSubmitLocation_LiveIsFlagged(t *testing.T) {
	f := newFixture(t)
	s := f.submission(1, near)
	s.Live = true

	out, err := f.engine.SubmitLocation(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.True(t, out.Live)
}

func TestSubmitLocation_UnknownAction(t *testing.T) {
	f := newFixture(t)
	s := f.submission(1, near)
	s.Action = Action("teleport")

	_, err := f.engine.SubmitLocation(context.Background(), s)
	assert.True(t, errdef.IsBadRequest(err))
}

type failingStore struct {
	store.Store
}

func (failingStore) GetGathering(context.Context, int64) (*model.Gathering, error) {
	return nil, errdef.NewRetryable("failed to load gathering: %w", errors.New("connection refused"))
}

func TestSubmitLocation_PersistenceFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	e := newEngine(failingStore{Store: f.store}, f.clock, nil)

	_, err := e.SubmitLocation(context.Background(), f.submission(1, near))
	require.Error(t, err)
	assert.True(t, errdef.IsRetryable(err))
}

func TestRunMonthlyEscalation_Notifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	changes, err := f.engine.RunMonthlyEscalation(ctx, 4, 2025)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, int64(1), changes[0].ParticipantID)
	assert.Equal(t, changes, f.notifier.changes)

	_, err = f.engine.RunMonthlyEscalation(ctx, 4, 2025)
	assert.True(t, errdef.IsConflict(err))
	assert.Len(t, f.notifier.changes, 1)
}

func TestGetRanking(t *testing.T) {
	f := newFixture(t)
	storetest.Participant(t, f.db, 4, model.StatusActive)
	storetest.Entry(t, f.db, 4, 12, 4, 2025)

	standings, err := f.engine.GetRanking(context.Background(), 4, 2025)
	require.NoError(t, err)
	require.Len(t, standings, 2)
	assert.Equal(t, int64(4), standings[0].ParticipantID)
	assert.Equal(t, int64(1), standings[1].ParticipantID)
}

func TestAddManualPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.engine.AddManualPoints(ctx, 1, 7, "volunteering evidence", model.SourceManualEvidence)
	require.NoError(t, err)
	assert.Equal(t, 7, entry.Delta)

	_, err = f.engine.AddManualPoints(ctx, 1, 7, "sneaky", model.SourceGatheringAttendance)
	assert.True(t, errdef.IsBadRequest(err))

	_, err = f.engine.AddManualPoints(ctx, 1, -3, "", model.SourcePenalty)
	assert.True(t, errdef.IsBadRequest(err))

	_, err = f.engine.AddManualPoints(ctx, 99, 1, "ghost", model.SourceManualEvidence)
	assert.True(t, errdef.IsNotFound(err))
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.Register(ctx, 1, f.g.ID)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.engine.Register(ctx, 1, f.g.ID)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = f.engine.Register(ctx, 3, f.g.ID)
	assert.True(t, errdef.IsForbidden(err))

	_, err = f.engine.Register(ctx, 1, 999)
	assert.True(t, errdef.IsNotFound(err))
}

func TestGetParticipantPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AddManualPoints(ctx, 1, 8, "evidence", model.SourceManualEvidence)
	require.NoError(t, err)
	require.NoError(t, f.store.SetWarningLevel(ctx, 1, model.WarningReminder))

	view, err := f.engine.GetParticipantPoints(ctx, 1, 4, 2025)
	require.NoError(t, err)
	assert.Equal(t, 8, view.MonthlyPoints)
	assert.Equal(t, 8, view.TotalPoints)
	require.NotNil(t, view.Rank)
	assert.Equal(t, 1, *view.Rank)
	assert.Equal(t, model.WarningReminder, view.WarningLevel)
	assert.Len(t, view.Recent, 1)

	// Pending participants have a view but no rank.
	view, err = f.engine.GetParticipantPoints(ctx, 2, 4, 2025)
	require.NoError(t, err)
	assert.Nil(t, view.Rank)
}
