package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// SourceCategory is the closed set of ledger entry origins.
type SourceCategory string

const (
	SourceGatheringAttendance SourceCategory = "gathering-attendance"
	SourceManualEvidence      SourceCategory = "manual-evidence"
	SourcePenalty             SourceCategory = "penalty"
	SourceNoShowPenalty       SourceCategory = "no-show-penalty"
)

func (c SourceCategory) Valid() bool {
	switch c {
	case SourceGatheringAttendance, SourceManualEvidence, SourcePenalty, SourceNoShowPenalty:
		return true
	}
	return false
}

// Manual reports whether entries of this category come from the approval workflow
// rather than from the engine itself.
func (c SourceCategory) Manual() bool {
	switch c {
	case SourceManualEvidence, SourcePenalty:
		return true
	case SourceGatheringAttendance, SourceNoShowPenalty:
		return false
	}
	panic(fmt.Sprintf("model: unknown source category %q", string(c)))
}

func (c SourceCategory) Value() (driver.Value, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid source category %q", string(c))
	}
	return string(c), nil
}

func (c *SourceCategory) Scan(src any) error {
	s, err := scanString(src)
	if err != nil {
		return fmt.Errorf("scan source category: %w", err)
	}
	if !SourceCategory(s).Valid() {
		return fmt.Errorf("scan source category: unknown value %q", s)
	}
	*c = SourceCategory(s)
	return nil
}

// PointEntry is one immutable ledger row. Balances are never stored; they are
// derived by summing entries.
type PointEntry struct {
	ID            int64          `gorm:"primaryKey" json:"id"`
	ParticipantID int64          `gorm:"not null;index:idx_points_participant_period,priority:1" json:"participant_id"`
	Delta         int            `gorm:"not null" json:"delta"`
	Reason        string         `gorm:"size:255;not null" json:"reason"`
	Source        SourceCategory `gorm:"type:varchar(32);not null" json:"source"`
	SourceID      *int64         `json:"source_id,omitempty"`
	Month         int            `gorm:"not null;index:idx_points_participant_period,priority:2;index:idx_points_period,priority:1" json:"month"`
	Year          int            `gorm:"not null;index:idx_points_participant_period,priority:3;index:idx_points_period,priority:2" json:"year"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
}
