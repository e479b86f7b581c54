package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// AttendanceKind is the closed set of attendance record kinds.
type AttendanceKind string

const (
	KindCheckIn  AttendanceKind = "check_in"
	KindCheckOut AttendanceKind = "check_out"
)

func (k AttendanceKind) Valid() bool {
	switch k {
	case KindCheckIn, KindCheckOut:
		return true
	}
	return false
}

// Value implements driver.Valuer and refuses to persist an unknown kind.
func (k AttendanceKind) Value() (driver.Value, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid attendance kind %q", string(k))
	}
	return string(k), nil
}

// Scan implements sql.Scanner.
func (k *AttendanceKind) Scan(src any) error {
	s, err := scanString(src)
	if err != nil {
		return fmt.Errorf("scan attendance kind: %w", err)
	}
	if !AttendanceKind(s).Valid() {
		return fmt.Errorf("scan attendance kind: unknown value %q", s)
	}
	*k = AttendanceKind(s)
	return nil
}

// AttendanceRecord is an immutable audit row written by a state transition.
// The unique index enforces at most one record of each kind per (participant, gathering).
type AttendanceRecord struct {
	ID            int64          `gorm:"primaryKey" json:"id"`
	ParticipantID int64          `gorm:"not null;uniqueIndex:idx_attendance_pair_kind,priority:1" json:"participant_id"`
	GatheringID   int64          `gorm:"not null;index;uniqueIndex:idx_attendance_pair_kind,priority:2" json:"gathering_id"`
	Kind          AttendanceKind `gorm:"type:varchar(16);not null;uniqueIndex:idx_attendance_pair_kind,priority:3" json:"kind"`
	Timestamp     time.Time      `gorm:"not null;index" json:"timestamp"`
	DwellMinutes  *float64       `json:"dwell_minutes,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
}
