package model

import "time"

// Gathering is a scheduled event with a time window, a registered coordinate and a fixed point value.
type Gathering struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	Title        string     `gorm:"size:255;not null" json:"title"`
	Latitude     *float64   `json:"latitude"`
	Longitude    *float64   `json:"longitude"`
	RadiusMeters float64    `gorm:"not null" json:"radius_meters"`
	OpensAt      *time.Time `gorm:"index" json:"opens_at"`
	ClosesAt     *time.Time `gorm:"index" json:"closes_at"`
	Points       int        `gorm:"not null" json:"points"`
	Active       bool       `gorm:"not null;index" json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasCoordinate reports whether both latitude and longitude are registered.
func (g *Gathering) HasCoordinate() bool {
	return g.Latitude != nil && g.Longitude != nil
}

// NotStarted reports whether now is before the opening time.
func (g *Gathering) NotStarted(now time.Time) bool {
	return g.OpensAt != nil && now.Before(*g.OpensAt)
}

// HasClosed reports whether now is past the closing time. A gathering
// without a closing time never closes on its own.
func (g *Gathering) HasClosed(now time.Time) bool {
	return g.ClosesAt != nil && now.After(*g.ClosesAt)
}
