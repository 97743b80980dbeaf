package models

// RatingEntry is one line of the contest rating.
type RatingEntry struct {
	Place         int
	ParticipantID int64
	Username      string
	FullName      string
	Score         int
	Submissions   int
}
