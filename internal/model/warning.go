package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// WarningLevel is the disciplinary ladder none → reminder → discipline → removal.
type WarningLevel string

const (
	WarningNone       WarningLevel = "none"
	WarningReminder   WarningLevel = "reminder"
	WarningDiscipline WarningLevel = "discipline"
	WarningRemoval    WarningLevel = "removal"
)

func (l WarningLevel) Valid() bool {
	switch l {
	case WarningNone, WarningReminder, WarningDiscipline, WarningRemoval:
		return true
	}
	return false
}

// Next returns the level one step up the ladder. Removal is absorbing.
func (l WarningLevel) Next() WarningLevel {
	switch l {
	case WarningNone:
		return WarningReminder
	case WarningReminder:
		return WarningDiscipline
	case WarningDiscipline, WarningRemoval:
		return WarningRemoval
	}
	panic(fmt.Sprintf("model: unknown warning level %q", string(l)))
}

func (l WarningLevel) Value() (driver.Value, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid warning level %q", string(l))
	}
	return string(l), nil
}

func (l *WarningLevel) Scan(src any) error {
	s, err := scanString(src)
	if err != nil {
		return fmt.Errorf("scan warning level: %w", err)
	}
	if !WarningLevel(s).Valid() {
		return fmt.Errorf("scan warning level: unknown value %q", s)
	}
	*l = WarningLevel(s)
	return nil
}

// WarningState holds the current warning level of a participant. A missing row means WarningNone.
type WarningState struct {
	ParticipantID int64        `gorm:"primaryKey;autoIncrement:false" json:"participant_id"`
	Level         WarningLevel `gorm:"type:varchar(16);not null" json:"level"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// EscalationRun marks a month as escalated so the monthly routine runs at most once per month.
type EscalationRun struct {
	ID        int64     `gorm:"primaryKey"`
	Month     int       `gorm:"not null;uniqueIndex:idx_escalation_period,priority:1"`
	Year      int       `gorm:"not null;uniqueIndex:idx_escalation_period,priority:2"`
	Changed   int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}
