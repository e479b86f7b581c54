// Package scoring owns the append-only points ledger and everything derived from it:
// period totals, rankings, monthly warning escalation and no-show penalties.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"attendance-backend/internal/errdef"
	"attendance-backend/internal/model"
	"attendance-backend/internal/store"
)

// Config holds the scoring thresholds.
type Config struct {
	LowScoreThreshold int
	NoShowPenalty     int
	// Location decides which calendar month an entry belongs to.
	Location *time.Location
}

// Ledger appends point entries and derives totals from them.
type Ledger struct {
	store  store.Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger creates a ledger. A nil now uses time.Now and a nil location uses UTC.
func NewLedger(s store.Store, cfg Config, logger *slog.Logger, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Ledger{store: s, cfg: cfg, logger: logger, now: now}
}

// WithStore returns a copy of the ledger writing through s, typically a transaction.
func (l *Ledger) WithStore(s store.Store) *Ledger {
	cp := *l
	cp.store = s
	return &cp
}

// Period returns the calendar month and year of t in the ledger's location.
func (l *Ledger) Period(t time.Time) (month, year int) {
	local := t.In(l.cfg.Location)
	return int(local.Month()), local.Year()
}

// CurrentPeriod returns the month and year of the ledger clock.
func (l *Ledger) CurrentPeriod() (month, year int) {
	return l.Period(l.now())
}

// AddPoints appends one entry to the ledger, dated by the ledger clock.
func (l *Ledger) AddPoints(ctx context.Context, participantID int64, delta int, reason string, source model.SourceCategory, sourceID *int64) (*model.PointEntry, error) {
	return l.addPointsDated(ctx, l.now(), participantID, delta, reason, source, sourceID)
}

// addPointsDated appends an entry counted in the period of dated.
func (l *Ledger) addPointsDated(ctx context.Context, dated time.Time, participantID int64, delta int, reason string, source model.SourceCategory, sourceID *int64) (*model.PointEntry, error) {
	if !source.Valid() {
		return nil, errdef.NewBadRequest("unknown point source %q", string(source))
	}
	now := l.now()
	month, year := l.Period(dated)
	entry := &model.PointEntry{
		ParticipantID: participantID,
		Delta:         delta,
		Reason:        reason,
		Source:        source,
		SourceID:      sourceID,
		Month:         month,
		Year:          year,
		CreatedAt:     now,
	}
	if err := l.store.AppendPointEntry(ctx, entry); err != nil {
		return nil, err
	}
	l.logger.InfoContext(ctx, "points added",
		slog.Int64("participant_id", participantID),
		slog.Int("delta", delta),
		slog.String("source", string(source)),
		slog.String("period", fmt.Sprintf("%d-%02d", year, month)))
	return entry, nil
}

func (l *Ledger) MonthlyTotal(ctx context.Context, participantID int64, month, year int) (int, error) {
	if err := validMonth(month); err != nil {
		return 0, err
	}
	return l.store.SumPoints(ctx, participantID, &month, year)
}

func (l *Ledger) YearlyTotal(ctx context.Context, participantID int64, year int) (int, error) {
	return l.store.SumPoints(ctx, participantID, nil, year)
}

func validMonth(month int) error {
	if month < 1 || month > 12 {
		return errdef.NewBadRequest("month %d out of range [1, 12]", month)
	}
	return nil
}

// PreviousMonth returns the month before (month, year), wrapping January to December of the previous year.
func PreviousMonth(month, year int) (int, int) {
	if month == 1 {
		return 12, year - 1
	}
	return month - 1, year
}
