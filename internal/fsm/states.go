package fsm

// Phases of the submission dialogue.
//
// Submission Flow:
//   PhaseIdle -> PhaseAwaitingLink (via "apply" button or /apply)
//   PhaseAwaitingLink -> PhaseAwaitingDate (via valid, not yet submitted link)
//   PhaseAwaitingDate -> PhaseAwaitingLocation (via date inside the contest window)
//   PhaseAwaitingLocation -> PhaseAwaitingName (via location text)
//   PhaseAwaitingName -> PhaseAwaitingConfirmation (via object name text)
//   PhaseAwaitingConfirmation -> PhaseIdle (via confirm button, submission committed)
//
// Invalid input keeps the current phase and re-prompts.
//
// Cancel:
//   Any phase -> PhaseIdle (via /cancel or cancel button, draft discarded)
//
// Expiry:
//   Any phase -> PhaseIdle (via sweeper, draft older than the expiry window)

type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseAwaitingLink         Phase = "awaiting_link"
	PhaseAwaitingDate         Phase = "awaiting_date"
	PhaseAwaitingLocation     Phase = "awaiting_location"
	PhaseAwaitingName         Phase = "awaiting_name"
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation"
)

// Field is a draft value collected by one of the phases.
type Field string

const (
	FieldLink     Field = "link"
	FieldDate     Field = "date"
	FieldLocation Field = "location"
	FieldName     Field = "name"

	// FieldConfirmation is not stored in drafts, it only tags rejections of
	// the confirmation step.
	FieldConfirmation Field = "confirmation"
)

var order = []Phase{
	PhaseAwaitingLink,
	PhaseAwaitingDate,
	PhaseAwaitingLocation,
	PhaseAwaitingName,
	PhaseAwaitingConfirmation,
}

var collects = map[Phase]Field{
	PhaseAwaitingLink:     FieldLink,
	PhaseAwaitingDate:     FieldDate,
	PhaseAwaitingLocation: FieldLocation,
	PhaseAwaitingName:     FieldName,
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	return p == PhaseIdle || p.position() >= 0
}

// InProgress reports whether a draft sitting at p is a live submission.
func (p Phase) InProgress() bool {
	return p != PhaseIdle && p.position() >= 0
}

// Collects returns the field gathered while the dialogue is at p.
func (p Phase) Collects() (Field, bool) {
	f, ok := collects[p]
	return f, ok
}

// Next returns the phase that follows p. The confirmation phase and unknown
// phases lead back to idle.
func (p Phase) Next() Phase {
	if p == PhaseIdle {
		return PhaseAwaitingLink
	}
	i := p.position()
	if i < 0 || i+1 >= len(order) {
		return PhaseIdle
	}
	return order[i+1]
}

// FieldsBefore returns the fields a draft at p must hold, in collection order.
func FieldsBefore(p Phase) []Field {
	i := p.position()
	if i < 0 {
		return nil
	}
	var fields []Field
	for _, prev := range order[:i] {
		if f, ok := collects[prev]; ok {
			fields = append(fields, f)
		}
	}
	return fields
}

func (p Phase) position() int {
	for i, o := range order {
		if o == p {
			return i
		}
	}
	return -1
}

// Admin dialogue states, persisted in the AdminStates table.
//
//   StateAdminPanel -> StateAdminAwaitScore (via approve button on a submission)
//   StateAdminAwaitScore -> StateAdminPanel (via numeric score)
//   StateAdminPanel -> StateAdminAwaitNews (via "send news" button)
//   StateAdminAwaitNews -> StateAdminPanel (via broadcast message or cancel)
const (
	StateAdminPanel      = "admin_panel"
	StateAdminAwaitScore = "admin_await_score"
	StateAdminAwaitNews  = "admin_await_news"
)
