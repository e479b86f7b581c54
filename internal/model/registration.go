package model

import "time"

// Registration records a participant's intent to attend a gathering. It drives
// the no-show penalty once the gathering has closed.
type Registration struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	ParticipantID int64     `gorm:"not null;uniqueIndex:idx_registration_pair,priority:1" json:"participant_id"`
	GatheringID   int64     `gorm:"not null;index;uniqueIndex:idx_registration_pair,priority:2" json:"gathering_id"`
	Attended      bool      `gorm:"not null" json:"attended"`
	Penalized     bool      `gorm:"not null" json:"penalized"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}
