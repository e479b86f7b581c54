// Package attendance implements the per (participant, gathering) lifecycle
// NONE -> CHECKED_IN -> CHECKED_OUT.
package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"attendance-backend/internal/model"
	"attendance-backend/internal/scoring"
	"attendance-backend/internal/store"
	"attendance-backend/internal/verdict"
)

// State is the lifecycle position of a (participant, gathering) pair.
type State string

const (
	StateNone       State = "NONE"
	StateCheckedIn  State = "CHECKED_IN"
	StateCheckedOut State = "CHECKED_OUT"
)

// Result is the outcome of a transition. When the verdict denies, nothing was written.
type Result struct {
	verdict.Verdict
	Record *model.AttendanceRecord
	Points *model.PointEntry
	// RemainingWait is set with TooSoon.
	RemainingWait time.Duration
}

func denied(code verdict.Code, format string, a ...any) Result {
	return Result{Verdict: verdict.Deny(code, format, a...)}
}

type pairKey struct {
	participantID int64
	gatheringID   int64
}

// Machine performs check-in and check-out transitions.
type Machine struct {
	store    store.Store
	ledger   *scoring.Ledger
	locks    *KeyedMutex[pairKey]
	minDwell time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewMachine creates a state machine. A nil now uses time.Now.
func NewMachine(s store.Store, ledger *scoring.Ledger, minDwell time.Duration, logger *slog.Logger, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		store:    s,
		ledger:   ledger,
		locks:    NewKeyedMutex[pairKey](),
		minDwell: minDwell,
		now:      now,
		logger:   logger,
	}
}

// State reads the current lifecycle state of the pair.
func (m *Machine) State(ctx context.Context, participantID, gatheringID int64) (State, error) {
	return stateOf(ctx, m.store, participantID, gatheringID)
}

func stateOf(ctx context.Context, s store.Store, participantID, gatheringID int64) (State, error) {
	out, err := s.HasAttendance(ctx, participantID, gatheringID, model.KindCheckOut)
	if err != nil {
		return "", err
	}
	if out {
		return StateCheckedOut, nil
	}
	in, err := s.HasAttendance(ctx, participantID, gatheringID, model.KindCheckIn)
	if err != nil {
		return "", err
	}
	if in {
		return StateCheckedIn, nil
	}
	return StateNone, nil
}

// OpenGuard allows check-in only for active gatherings within their time window.
func OpenGuard(now func() time.Time) verdict.Guard[*model.Gathering] {
	return verdict.Guard[*model.Gathering]{
		Name: "gathering-open",
		Check: func(_ context.Context, g *model.Gathering) verdict.Verdict {
			t := now()
			switch {
			case !g.Active:
				return verdict.Deny(verdict.GatheringInactive, "gathering %q is not active", g.Title)
			case g.NotStarted(t):
				return verdict.Deny(verdict.GatheringNotStarted, "gathering %q opens at %s", g.Title, g.OpensAt.Format(time.RFC3339))
			case g.HasClosed(t):
				return verdict.Deny(verdict.GatheringClosed, "gathering %q closed at %s", g.Title, g.ClosesAt.Format(time.RFC3339))
			}
			return verdict.Allow()
		},
	}
}

// CheckIn moves the pair from NONE to CHECKED_IN. The caller has already
// validated the submission and the geofence.
func (m *Machine) CheckIn(ctx context.Context, participantID int64, g *model.Gathering) (Result, error) {
	unlock := m.locks.Lock(pairKey{participantID, g.ID})
	defer unlock()

	if v, _ := (verdict.Chain[*model.Gathering]{OpenGuard(m.now)}).Run(ctx, g); !v.Allowed {
		return m.log(ctx, "check-in", participantID, g.ID, Result{Verdict: v}), nil
	}

	now := m.now()
	var res Result
	err := m.store.Transaction(ctx, func(tx store.Store) error {
		state, err := stateOf(ctx, tx, participantID, g.ID)
		if err != nil {
			return err
		}
		switch state {
		case StateNone:
		case StateCheckedIn:
			res = denied(verdict.AlreadyCheckedIn, "already checked in to %q", g.Title)
			return nil
		case StateCheckedOut:
			res = denied(verdict.AlreadyCheckedOut, "attendance at %q is already complete", g.Title)
			return nil
		default:
			panic(fmt.Sprintf("attendance: unknown state %q", state))
		}

		rec := &model.AttendanceRecord{
			ParticipantID: participantID,
			GatheringID:   g.ID,
			Kind:          model.KindCheckIn,
			Timestamp:     now,
			CreatedAt:     now,
		}
		written, err := tx.AppendAttendanceRecord(ctx, rec)
		if err != nil {
			return err
		}
		if !written {
			res = denied(verdict.AlreadyCheckedIn, "already checked in to %q", g.Title)
			return nil
		}
		if err := tx.MarkAttended(ctx, participantID, g.ID); err != nil {
			return err
		}
		res = Result{Verdict: verdict.Allow(), Record: rec}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return m.log(ctx, "check-in", participantID, g.ID, res), nil
}

// CheckOut moves the pair from CHECKED_IN to CHECKED_OUT and awards the
// gathering's points. Both writes share one transaction.
func (m *Machine) CheckOut(ctx context.Context, participantID int64, g *model.Gathering) (Result, error) {
	unlock := m.locks.Lock(pairKey{participantID, g.ID})
	defer unlock()

	now := m.now()
	var res Result
	err := m.store.Transaction(ctx, func(tx store.Store) error {
		in, err := tx.FindAttendance(ctx, participantID, g.ID, model.KindCheckIn)
		if err != nil {
			return err
		}
		if in == nil {
			res = denied(verdict.NotCheckedIn, "not checked in to %q", g.Title)
			return nil
		}
		out, err := tx.HasAttendance(ctx, participantID, g.ID, model.KindCheckOut)
		if err != nil {
			return err
		}
		if out {
			res = denied(verdict.AlreadyCheckedOut, "already checked out of %q", g.Title)
			return nil
		}
		if g.HasClosed(now) {
			res = denied(verdict.GatheringClosed, "gathering %q closed at %s", g.Title, g.ClosesAt.Format(time.RFC3339))
			return nil
		}

		elapsed := now.Sub(in.Timestamp)
		if elapsed < m.minDwell {
			remaining := m.minDwell - elapsed
			res = denied(verdict.TooSoon, "checked in %d minutes ago, check out in %d more minutes",
				int(elapsed.Minutes()), int(math.Ceil(remaining.Minutes())))
			res.RemainingWait = remaining
			return nil
		}

		dwell := elapsed.Minutes()
		rec := &model.AttendanceRecord{
			ParticipantID: participantID,
			GatheringID:   g.ID,
			Kind:          model.KindCheckOut,
			Timestamp:     now,
			DwellMinutes:  &dwell,
			CreatedAt:     now,
		}
		written, err := tx.AppendAttendanceRecord(ctx, rec)
		if err != nil {
			return err
		}
		if !written {
			res = denied(verdict.AlreadyCheckedOut, "already checked out of %q", g.Title)
			return nil
		}

		entry, err := m.ledger.WithStore(tx).AddPoints(ctx, participantID, g.Points,
			fmt.Sprintf("attended %s", g.Title), model.SourceGatheringAttendance, &g.ID)
		if err != nil {
			return err
		}
		res = Result{Verdict: verdict.Allow(), Record: rec, Points: entry}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return m.log(ctx, "check-out", participantID, g.ID, res), nil
}

func (m *Machine) log(ctx context.Context, transition string, participantID, gatheringID int64, res Result) Result {
	attrs := []any{
		slog.String("transition", transition),
		slog.Int64("participant_id", participantID),
		slog.Int64("gathering_id", gatheringID),
	}
	if !res.Allowed {
		m.logger.InfoContext(ctx, "transition rejected", append(attrs,
			slog.String("code", string(res.Code)), slog.String("reason", res.Message))...)
		return res
	}
	if res.Record != nil && res.Record.DwellMinutes != nil {
		attrs = append(attrs, slog.Float64("dwell_minutes", *res.Record.DwellMinutes))
	}
	m.logger.InfoContext(ctx, "transition applied", attrs...)
	return res
}
