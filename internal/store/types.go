package store

// ParticipantTotal is one row of a grouped point sum.
type ParticipantTotal struct {
	ParticipantID int64
	Total         int
}
