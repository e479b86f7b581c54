package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// ParticipantStatus is the closed set of membership states.
type ParticipantStatus string

const (
	StatusPending ParticipantStatus = "pending"
	StatusActive  ParticipantStatus = "active"
	StatusBanned  ParticipantStatus = "banned"
)

func (s ParticipantStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusBanned:
		return true
	}
	return false
}

func (s ParticipantStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid participant status %q", string(s))
	}
	return string(s), nil
}

func (s *ParticipantStatus) Scan(src any) error {
	v, err := scanString(src)
	if err != nil {
		return fmt.Errorf("scan participant status: %w", err)
	}
	if !ParticipantStatus(v).Valid() {
		return fmt.Errorf("scan participant status: unknown value %q", v)
	}
	*s = ParticipantStatus(v)
	return nil
}

// Participant is a member identified by their chat user id.
type Participant struct {
	ID        int64             `gorm:"primaryKey;autoIncrement:false" json:"id"`
	FullName  string            `gorm:"size:255;not null" json:"full_name"`
	Status    ParticipantStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
