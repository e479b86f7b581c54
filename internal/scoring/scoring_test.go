package scoring

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"attendance-backend/internal/errdef"
	"attendance-backend/internal/model"
	"attendance-backend/internal/store"
	"attendance-backend/internal/store/storetest"
)

var testNow = time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) (*Ledger, store.Store, *gorm.DB) {
	t.Helper()
	s, gdb := storetest.New(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := NewLedger(s, Config{LowScoreThreshold: 15, NoShowPenalty: 5, Location: time.UTC}, logger, func() time.Time { return testNow })
	return l, s, gdb
}

func TestLedger_AddPoints(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	gid := int64(3)

	entry, err := l.AddPoints(ctx, 1, 10, "attended", model.SourceGatheringAttendance, &gid)
	require.NoError(t, err)
	assert.Equal(t, 4, entry.Month)
	assert.Equal(t, 2025, entry.Year)
	assert.NotZero(t, entry.ID)

	_, err = l.AddPoints(ctx, 1, 10, "bogus", model.SourceCategory("gift"), nil)
	assert.True(t, errdef.IsBadRequest(err))
}

func TestLedger_PeriodUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	l := NewLedger(nil, Config{Location: loc}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	// 18:00 UTC on the last day of March is already April in UTC+7.
	month, year := l.Period(time.Date(2025, 3, 31, 18, 0, 0, 0, time.UTC))
	assert.Equal(t, 4, month)
	assert.Equal(t, 2025, year)
}

func TestLedger_TotalsAreOrderIndependent(t *testing.T) {
	deltas := []int{5, -3, 12, 7, -1}
	orders := [][]int{{0, 1, 2, 3, 4}, {4, 3, 2, 1, 0}, {2, 0, 4, 1, 3}}

	for _, order := range orders {
		l, _, gdb := newTestLedger(t)
		for _, i := range order {
			storetest.Entry(t, gdb, 1, deltas[i], 4, 2025)
		}
		storetest.Entry(t, gdb, 1, 100, 3, 2025)
		storetest.Entry(t, gdb, 2, 50, 4, 2025)

		monthly, err := l.MonthlyTotal(context.Background(), 1, 4, 2025)
		require.NoError(t, err)
		assert.Equal(t, 20, monthly)

		yearly, err := l.YearlyTotal(context.Background(), 1, 2025)
		require.NoError(t, err)
		assert.Equal(t, 120, yearly)
	}
}

func TestLedger_MonthlyTotalRejectsBadMonth(t *testing.T) {
	l, _, _ := newTestLedger(t)
	_, err := l.MonthlyTotal(context.Background(), 1, 13, 2025)
	assert.True(t, errdef.IsBadRequest(err))
}

func TestLedger_Ranking(t *testing.T) {
	l, s, gdb := newTestLedger(t)
	ctx := context.Background()

	storetest.Participant(t, gdb, 30, model.StatusActive)
	storetest.Participant(t, gdb, 10, model.StatusActive)
	storetest.Participant(t, gdb, 20, model.StatusActive)
	storetest.Participant(t, gdb, 40, model.StatusActive)
	storetest.Participant(t, gdb, 50, model.StatusBanned)

	storetest.Entry(t, gdb, 30, 40, 1, 2025)
	storetest.Entry(t, gdb, 30, 5, 4, 2025)
	storetest.Entry(t, gdb, 10, 25, 4, 2025)
	storetest.Entry(t, gdb, 20, 25, 2, 2025)
	storetest.Entry(t, gdb, 50, 999, 4, 2025)
	storetest.Entry(t, gdb, 40, 80, 4, 2024)
	require.NoError(t, s.SetWarningLevel(ctx, 40, model.WarningReminder))

	standings, err := l.Ranking(ctx, 4, 2025)
	require.NoError(t, err)
	require.Len(t, standings, 4)

	ids := make([]int64, len(standings))
	for i, st := range standings {
		ids[i] = st.ParticipantID
		assert.Equal(t, i+1, st.Rank)
	}
	// 30 leads with 45; 10 and 20 tie on 25 and are ordered by id; 40 has nothing this year.
	assert.Equal(t, []int64{30, 10, 20, 40}, ids)

	assert.Equal(t, 45, standings[0].TotalPoints)
	assert.Equal(t, 5, standings[0].MonthlyPoints)
	assert.Equal(t, 25, standings[1].MonthlyPoints)
	assert.Equal(t, 0, standings[2].MonthlyPoints)
	assert.Equal(t, model.WarningReminder, standings[3].WarningLevel)
	assert.Equal(t, model.WarningNone, standings[0].WarningLevel)

	st, ok, err := l.StandingOf(ctx, 20, 4, 2025)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, st.Rank)

	_, ok, err = l.StandingOf(ctx, 50, 4, 2025)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedger_RunMonthlyEscalation(t *testing.T) {
	testCases := []struct {
		name     string
		previous int
		current  int
		start    model.WarningLevel
		expected model.WarningLevel
	}{
		{name: "both months low advances one step", previous: 10, current: 12, start: model.WarningNone, expected: model.WarningReminder},
		{name: "current month recovered", previous: 10, current: 20, start: model.WarningNone, expected: model.WarningNone},
		{name: "previous month fine", previous: 20, current: 10, start: model.WarningNone, expected: model.WarningNone},
		{name: "exactly threshold is not low", previous: 15, current: 15, start: model.WarningNone, expected: model.WarningNone},
		{name: "reminder becomes discipline", previous: 0, current: 0, start: model.WarningReminder, expected: model.WarningDiscipline},
		{name: "removal is absorbing", previous: 0, current: 0, start: model.WarningRemoval, expected: model.WarningRemoval},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l, s, gdb := newTestLedger(t)
			ctx := context.Background()

			storetest.Participant(t, gdb, 1, model.StatusActive)
			if tc.start != model.WarningNone {
				require.NoError(t, s.SetWarningLevel(ctx, 1, tc.start))
			}
			storetest.Entry(t, gdb, 1, tc.previous, 3, 2025)
			storetest.Entry(t, gdb, 1, tc.current, 4, 2025)

			changes, err := l.RunMonthlyEscalation(ctx, 4, 2025)
			require.NoError(t, err)

			level, err := s.GetWarningLevel(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, level)

			if tc.expected == tc.start {
				assert.Empty(t, changes)
			} else {
				require.Len(t, changes, 1)
				assert.Equal(t, WarningChange{
					ParticipantID:  1,
					From:           tc.start,
					To:             tc.expected,
					MonthlyPoints:  tc.current,
					PreviousPoints: tc.previous,
				}, changes[0])
			}
		})
	}
}

func TestLedger_RunMonthlyEscalationOncePerMonth(t *testing.T) {
	l, s, gdb := newTestLedger(t)
	ctx := context.Background()
	storetest.Participant(t, gdb, 1, model.StatusActive)

	changes, err := l.RunMonthlyEscalation(ctx, 4, 2025)
	require.NoError(t, err)
	assert.Len(t, changes, 1)

	_, err = l.RunMonthlyEscalation(ctx, 4, 2025)
	assert.True(t, errdef.IsConflict(err))

	level, err := s.GetWarningLevel(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.WarningReminder, level)
}

func TestLedger_RunMonthlyEscalationJanuaryLooksAtDecember(t *testing.T) {
	l, s, gdb := newTestLedger(t)
	ctx := context.Background()
	storetest.Participant(t, gdb, 1, model.StatusActive)
	storetest.Entry(t, gdb, 1, 30, 12, 2024)

	changes, err := l.RunMonthlyEscalation(ctx, 1, 2025)
	require.NoError(t, err)
	assert.Empty(t, changes)

	level, err := s.GetWarningLevel(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.WarningNone, level)
}

func TestLedger_EscalationSkipsIneligible(t *testing.T) {
	l, _, gdb := newTestLedger(t)
	storetest.Participant(t, gdb, 1, model.StatusPending)
	storetest.Participant(t, gdb, 2, model.StatusBanned)

	changes, err := l.RunMonthlyEscalation(context.Background(), 4, 2025)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestPreviousMonth(t *testing.T) {
	m, y := PreviousMonth(1, 2025)
	assert.Equal(t, 12, m)
	assert.Equal(t, 2024, y)

	m, y = PreviousMonth(7, 2025)
	assert.Equal(t, 6, m)
	assert.Equal(t, 2025, y)
}

func TestLedger_PenalizeNoShows(t *testing.T) {
	l, s, gdb := newTestLedger(t)
	ctx := context.Background()

	storetest.Participant(t, gdb, 1, model.StatusActive)
	storetest.Participant(t, gdb, 2, model.StatusActive)
	g := storetest.Gathering(t, gdb, 21.0285, 105.8542, 50, testNow.Add(-3*time.Hour), testNow.Add(-time.Hour), 10)

	for _, pid := range []int64{1, 2} {
		created, err := s.CreateRegistration(ctx, &model.Registration{ParticipantID: pid, GatheringID: g.ID, CreatedAt: testNow})
		require.NoError(t, err)
		require.True(t, created)
	}
	require.NoError(t, s.MarkAttended(ctx, 2, g.ID))

	penalized, err := l.PenalizeNoShows(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, penalized)

	total, err := l.MonthlyTotal(ctx, 1, 4, 2025)
	require.NoError(t, err)
	assert.Equal(t, -5, total)

	// A second run finds nothing left to penalize.
	penalized, err = l.PenalizeNoShows(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, penalized)

	total, err = l.MonthlyTotal(ctx, 1, 4, 2025)
	require.NoError(t, err)
	assert.Equal(t, -5, total)
}

func TestLedger_PenalizeNoShowsDatedByClosing(t *testing.T) {
	s, gdb := storetest.New(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2025, 4, 1, 0, 30, 0, 0, time.UTC)
	l := NewLedger(s, Config{LowScoreThreshold: 15, NoShowPenalty: 5, Location: time.UTC}, logger, func() time.Time { return now })
	ctx := context.Background()

	storetest.Participant(t, gdb, 1, model.StatusActive)
	closes := time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC)
	g := storetest.Gathering(t, gdb, 21.0285, 105.8542, 50, closes.Add(-2*time.Hour), closes, 10)
	_, err := s.CreateRegistration(ctx, &model.Registration{ParticipantID: 1, GatheringID: g.ID, CreatedAt: closes.Add(-3 * time.Hour)})
	require.NoError(t, err)

	_, err = l.PenalizeNoShows(ctx, g.ID)
	require.NoError(t, err)

	march, err := l.MonthlyTotal(ctx, 1, 3, 2025)
	require.NoError(t, err)
	assert.Equal(t, -5, march)
	april, err := l.MonthlyTotal(ctx, 1, 4, 2025)
	require.NoError(t, err)
	assert.Zero(t, april)
}

func TestLedger_PenalizeNoShowsBeforeClosing(t *testing.T) {
	l, _, gdb := newTestLedger(t)
	g := storetest.Gathering(t, gdb, 21.0285, 105.8542, 50, testNow.Add(-time.Hour), testNow.Add(time.Hour), 10)

	_, err := l.PenalizeNoShows(context.Background(), g.ID)
	assert.True(t, errdef.IsConflict(err))

	_, err = l.PenalizeNoShows(context.Background(), 999)
	assert.True(t, errdef.IsNotFound(err))
}
