package models

import "time"

type Participant struct {
	ID         int64
	Username   string
	FullName   string
	EnrolledAt time.Time
	LastSeenAt time.Time
	Score      int
}

// Mention returns a link to the participant usable in HTML messages.
func (p *Participant) Mention() string {
	if p.Username != "" {
		return "https://t.me/" + p.Username
	}
	return "tg://user?id=" + formatID(p.ID)
}
