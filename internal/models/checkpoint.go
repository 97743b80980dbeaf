package models

import (
	"fmt"
	"time"

	"github.com/ad/go-telegram-contest/internal/fsm"
)

// Checkpoint is the durable record of a participant's in-progress submission.
type Checkpoint struct {
	ParticipantID int64
	Phase         fsm.Phase
	Data          map[fsm.Field]string
	StartedAt     time.Time
	LastPromptRef int
	UpdatedAt     time.Time
}

func IdleCheckpoint(participantID int64) *Checkpoint {
	return &Checkpoint{
		ParticipantID: participantID,
		Phase:         fsm.PhaseIdle,
		Data:          map[fsm.Field]string{},
	}
}

// NewCheckpoint opens a fresh draft waiting for the link.
func NewCheckpoint(participantID int64, now time.Time) *Checkpoint {
	return &Checkpoint{
		ParticipantID: participantID,
		Phase:         fsm.PhaseAwaitingLink,
		Data:          map[fsm.Field]string{},
		StartedAt:     now,
		UpdatedAt:     now,
	}
}

func (c *Checkpoint) InProgress() bool {
	return c != nil && c.Phase.InProgress()
}

func (c *Checkpoint) Clone() *Checkpoint {
	cp := *c
	cp.Data = make(map[fsm.Field]string, len(c.Data))
	for k, v := range c.Data {
		cp.Data[k] = v
	}
	return &cp
}

// Advance returns a copy of the checkpoint holding value for field and sitting
// at the next phase.
func (c *Checkpoint) Advance(field fsm.Field, value string, now time.Time) *Checkpoint {
	next := c.Clone()
	next.Data[field] = value
	next.Phase = c.Phase.Next()
	next.UpdatedAt = now
	return next
}

// Validate checks that the draft holds exactly the fields of the phases it
// has passed.
func (c *Checkpoint) Validate() error {
	if !c.Phase.Valid() {
		return fmt.Errorf("unknown phase %q", c.Phase)
	}
	want := fsm.FieldsBefore(c.Phase)
	if len(want) != len(c.Data) {
		return fmt.Errorf("phase %s expects %d fields, draft has %d", c.Phase, len(want), len(c.Data))
	}
	for _, f := range want {
		if _, ok := c.Data[f]; !ok {
			return fmt.Errorf("phase %s is missing field %s", c.Phase, f)
		}
	}
	return nil
}
