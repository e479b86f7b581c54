package scoring

import (
	"context"
	"sort"

	"attendance-backend/internal/model"
)

// Standing is one row of the ranking.
type Standing struct {
	ParticipantID int64              `json:"participant_id"`
	FullName      string             `json:"full_name"`
	Rank          int                `json:"rank"`
	MonthlyPoints int                `json:"monthly_points"`
	TotalPoints   int                `json:"total_points"`
	WarningLevel  model.WarningLevel `json:"warning_level"`
}

// Ranking orders eligible participants by yearly total, highest first. Ties are
// broken by participant id so the order is deterministic. Ranks start at 1.
func (l *Ledger) Ranking(ctx context.Context, month, year int) ([]Standing, error) {
	if err := validMonth(month); err != nil {
		return nil, err
	}

	participants, err := l.store.ListEligibleParticipants(ctx)
	if err != nil {
		return nil, err
	}
	yearly, err := l.store.SumPointsByParticipant(ctx, nil, year)
	if err != nil {
		return nil, err
	}
	monthly, err := l.store.SumPointsByParticipant(ctx, &month, year)
	if err != nil {
		return nil, err
	}
	levels, err := l.store.WarningLevels(ctx)
	if err != nil {
		return nil, err
	}

	standings := make([]Standing, 0, len(participants))
	for _, p := range participants {
		level, ok := levels[p.ID]
		if !ok {
			level = model.WarningNone
		}
		standings = append(standings, Standing{
			ParticipantID: p.ID,
			FullName:      p.FullName,
			MonthlyPoints: monthly[p.ID],
			TotalPoints:   yearly[p.ID],
			WarningLevel:  level,
		})
	}

	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].TotalPoints != standings[j].TotalPoints {
			return standings[i].TotalPoints > standings[j].TotalPoints
		}
		return standings[i].ParticipantID < standings[j].ParticipantID
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings, nil
}

// StandingOf returns the participant's row of the ranking, or false when they are not eligible.
func (l *Ledger) StandingOf(ctx context.Context, participantID int64, month, year int) (Standing, bool, error) {
	standings, err := l.Ranking(ctx, month, year)
	if err != nil {
		return Standing{}, false, err
	}
	for _, s := range standings {
		if s.ParticipantID == participantID {
			return s, true, nil
		}
	}
	return Standing{}, false, nil
}
