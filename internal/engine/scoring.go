package engine

import (
	"context"
	"log/slog"

	"attendance-backend/internal/errdef"
	"attendance-backend/internal/model"
	"attendance-backend/internal/scoring"
)

// GetRanking returns the ranking for the given period.
func (e *Engine) GetRanking(ctx context.Context, month, year int) ([]scoring.Standing, error) {
	return e.ledger.Ranking(ctx, month, year)
}

// RunMonthlyEscalation escalates (month, year) and notifies every participant whose level changed.
func (e *Engine) RunMonthlyEscalation(ctx context.Context, month, year int) ([]scoring.WarningChange, error) {
	changes, err := e.ledger.RunMonthlyEscalation(ctx, month, year)
	if err != nil {
		return nil, err
	}
	if e.notifier != nil {
		for _, c := range changes {
			e.notifier.NotifyWarningChange(c)
		}
	}
	return changes, nil
}

// PenalizeNoShows applies the no-show penalty for a closed gathering.
func (e *Engine) PenalizeNoShows(ctx context.Context, gatheringID int64) ([]int64, error) {
	return e.ledger.PenalizeNoShows(ctx, gatheringID)
}

// AddManualPoints records an approved evidence award or a penalty.
func (e *Engine) AddManualPoints(ctx context.Context, participantID int64, delta int, reason string, source model.SourceCategory) (*model.PointEntry, error) {
	if !source.Valid() || !source.Manual() {
		return nil, errdef.NewBadRequest("source %q cannot be added manually", string(source))
	}
	if reason == "" {
		return nil, errdef.NewBadRequest("reason is required")
	}
	if _, err := e.store.GetParticipant(ctx, participantID); err != nil {
		return nil, err
	}
	entry, err := e.ledger.AddPoints(ctx, participantID, delta, reason, source, nil)
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "manual points recorded",
		slog.Int64("participant_id", participantID), slog.Int("delta", delta), slog.String("source", string(source)))
	return entry, nil
}

// Register records a participant's intent to attend a gathering. It reports
// whether the registration is new.
func (e *Engine) Register(ctx context.Context, participantID, gatheringID int64) (bool, error) {
	p, err := e.store.GetParticipant(ctx, participantID)
	if err != nil {
		return false, err
	}
	if v, _ := e.participants.Run(ctx, p); !v.Allowed {
		return false, errdef.NewForbidden("%s", v.Message)
	}
	g, err := e.store.GetGathering(ctx, gatheringID)
	if err != nil {
		return false, err
	}
	if !g.Active || g.HasClosed(e.now()) {
		return false, errdef.NewConflict("gathering %q is no longer open for registration", g.Title)
	}
	return e.store.CreateRegistration(ctx, &model.Registration{
		ParticipantID: participantID,
		GatheringID:   gatheringID,
		CreatedAt:     e.now(),
	})
}

// ParticipantPoints is a participant's view of their standing.
type ParticipantPoints struct {
	ParticipantID int64              `json:"participant_id"`
	FullName      string             `json:"full_name"`
	Month         int                `json:"month"`
	Year          int                `json:"year"`
	MonthlyPoints int                `json:"monthly_points"`
	TotalPoints   int                `json:"total_points"`
	Rank          *int               `json:"rank,omitempty"`
	WarningLevel  model.WarningLevel `json:"warning_level"`
	Recent        []model.PointEntry `json:"recent"`
}

// GetParticipantPoints returns totals, rank, warning level and the latest entries of a participant.
func (e *Engine) GetParticipantPoints(ctx context.Context, participantID int64, month, year int) (*ParticipantPoints, error) {
	p, err := e.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	monthly, err := e.ledger.MonthlyTotal(ctx, participantID, month, year)
	if err != nil {
		return nil, err
	}
	total, err := e.ledger.YearlyTotal(ctx, participantID, year)
	if err != nil {
		return nil, err
	}
	level, err := e.store.GetWarningLevel(ctx, participantID)
	if err != nil {
		return nil, err
	}
	recent, err := e.store.ListPointEntries(ctx, participantID, 10)
	if err != nil {
		return nil, err
	}

	view := &ParticipantPoints{
		ParticipantID: p.ID,
		FullName:      p.FullName,
		Month:         month,
		Year:          year,
		MonthlyPoints: monthly,
		TotalPoints:   total,
		WarningLevel:  level,
		Recent:        recent,
	}
	st, ok, err := e.ledger.StandingOf(ctx, participantID, month, year)
	if err != nil {
		return nil, err
	}
	if ok {
		view.Rank = &st.Rank
	}
	return view, nil
}

// CurrentPeriod returns the month and year used when callers omit a period.
func (e *Engine) CurrentPeriod() (month, year int) {
	return e.ledger.CurrentPeriod()
}
