package scoring

import (
	"context"
	"log/slog"

	"attendance-backend/internal/model"
	"attendance-backend/internal/store"
)

// WarningChange describes one participant whose warning level was advanced.
type WarningChange struct {
	ParticipantID  int64              `json:"participant_id"`
	From           model.WarningLevel `json:"from"`
	To             model.WarningLevel `json:"to"`
	MonthlyPoints  int                `json:"monthly_points"`
	PreviousPoints int                `json:"previous_points"`
}

// RunMonthlyEscalation advances by one step the warning level of every eligible
// participant whose totals for (month, year) and the month before are both below
// the low score threshold. A month can be escalated only once; a second run
// returns an errdef conflict and changes nothing.
func (l *Ledger) RunMonthlyEscalation(ctx context.Context, month, year int) ([]WarningChange, error) {
	if err := validMonth(month); err != nil {
		return nil, err
	}
	prevMonth, prevYear := PreviousMonth(month, year)

	var changes []WarningChange
	err := l.store.Transaction(ctx, func(tx store.Store) error {
		changes = nil

		participants, err := tx.ListEligibleParticipants(ctx)
		if err != nil {
			return err
		}
		current, err := tx.SumPointsByParticipant(ctx, &month, year)
		if err != nil {
			return err
		}
		previous, err := tx.SumPointsByParticipant(ctx, &prevMonth, prevYear)
		if err != nil {
			return err
		}
		levels, err := tx.WarningLevels(ctx)
		if err != nil {
			return err
		}

		for _, p := range participants {
			curr, prev := current[p.ID], previous[p.ID]
			if curr >= l.cfg.LowScoreThreshold || prev >= l.cfg.LowScoreThreshold {
				continue
			}
			from, ok := levels[p.ID]
			if !ok {
				from = model.WarningNone
			}
			to := from.Next()
			if to == from {
				continue
			}
			if err := tx.SetWarningLevel(ctx, p.ID, to); err != nil {
				return err
			}
			changes = append(changes, WarningChange{
				ParticipantID:  p.ID,
				From:           from,
				To:             to,
				MonthlyPoints:  curr,
				PreviousPoints: prev,
			})
		}

		return tx.CreateEscalationRun(ctx, &model.EscalationRun{
			Month:     month,
			Year:      year,
			Changed:   len(changes),
			CreatedAt: l.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	for _, c := range changes {
		l.logger.InfoContext(ctx, "warning level advanced",
			slog.Int64("participant_id", c.ParticipantID),
			slog.String("from", string(c.From)),
			slog.String("to", string(c.To)),
			slog.Int("monthly_points", c.MonthlyPoints),
			slog.Int("previous_points", c.PreviousPoints))
	}
	l.logger.InfoContext(ctx, "monthly escalation finished",
		slog.Int("month", month), slog.Int("year", year), slog.Int("changed", len(changes)))
	return changes, nil
}
