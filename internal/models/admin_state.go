package models

type AdminState struct {
	UserID           int64
	CurrentState     string
	SubmissionID     string
	LastBotMessageID int
}
