package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Submission struct {
	ID            string
	ParticipantID int64
	Username      string
	FullName      string
	Link          string
	Date          string
	Location      string
	Name          string
	SubmittedAt   time.Time
	Score         *int
	AdminComment  string
}

// NewSubmissionID derives a submission id from the participant and the
// creation time. Ids of one participant sort by creation time.
func NewSubmissionID(participantID int64, createdAt time.Time) string {
	return fmt.Sprintf("%d_%d", participantID, createdAt.UnixMilli())
}

// ParticipantFromSubmissionID extracts the participant id encoded by
// NewSubmissionID.
func ParticipantFromSubmissionID(id string) (int64, error) {
	head, _, ok := strings.Cut(id, "_")
	if !ok {
		return 0, fmt.Errorf("invalid submission id %q", id)
	}
	return strconv.ParseInt(head, 10, 64)
}

func (s *Submission) Points() int {
	if s.Score == nil {
		return 0
	}
	return *s.Score
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
