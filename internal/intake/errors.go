package intake

import (
	"fmt"

	"github.com/ad/go-telegram-contest/internal/fsm"
)

// Rejection reasons carried by ValidationError.
const (
	ReasonFormat    = "format"
	ReasonFuture    = "future"
	ReasonTooEarly  = "too_early"
	ReasonTooLate   = "too_late"
	ReasonEmpty     = "empty"
	ReasonTooShort  = "too_short"
	ReasonTooLong   = "too_long"
	ReasonNotURL    = "not_url"
	ReasonQuestion  = "question"
	ReasonNotText   = "not_text"
	ReasonNotButton = "not_button"
)

// ValidationError rejects one input and keeps the dialogue where it was.
type ValidationError struct {
	Field  fsm.Field
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DuplicateLinkError means the participant already submitted this link.
type DuplicateLinkError struct {
	Link         string
	SubmissionID string
}

func (e *DuplicateLinkError) Error() string {
	return fmt.Sprintf("link %q already submitted as %s", e.Link, e.SubmissionID)
}

// PersistenceError wraps a store failure. The dialogue state is left as it
// was before the event.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
