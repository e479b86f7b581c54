package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"attendance-backend/internal/errdef"
	"attendance-backend/internal/model"
	"attendance-backend/internal/store"
)

// PenalizeNoShows deducts the no-show penalty from every participant who registered
// for a closed gathering but never checked in. Each registration is penalized at
// most once, so the call is safe to repeat. Penalties count in the month the
// gathering closed, however late they are applied. It returns the penalized
// participant ids.
func (l *Ledger) PenalizeNoShows(ctx context.Context, gatheringID int64) ([]int64, error) {
	g, err := l.store.GetGathering(ctx, gatheringID)
	if err != nil {
		return nil, err
	}
	if !g.HasClosed(l.now()) {
		return nil, errdef.NewConflict("gathering %d has not closed yet", gatheringID)
	}

	var penalized []int64
	err = l.store.Transaction(ctx, func(tx store.Store) error {
		penalized = nil
		ledger := l.WithStore(tx)

		regs, err := tx.ListNoShows(ctx, gatheringID)
		if err != nil {
			return err
		}
		for _, r := range regs {
			claimed, err := tx.MarkPenalized(ctx, r.ID)
			if err != nil {
				return err
			}
			if !claimed {
				continue
			}
			reason := fmt.Sprintf("no-show: %s", g.Title)
			if _, err := ledger.addPointsDated(ctx, *g.ClosesAt, r.ParticipantID, -l.cfg.NoShowPenalty, reason, model.SourceNoShowPenalty, &g.ID); err != nil {
				return err
			}
			penalized = append(penalized, r.ParticipantID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(penalized) > 0 {
		l.logger.InfoContext(ctx, "no-shows penalized",
			slog.Int64("gathering_id", gatheringID), slog.Int("count", len(penalized)))
	}
	return penalized, nil
}
