package intake

import (
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ad/go-telegram-contest/internal/fsm"
	"github.com/go-playground/validator/v10"
)

// DateLayout is the DD.MM.YYYY format participants type dates in.
const DateLayout = "02.01.2006"

const (
	minTextLength = 3
	maxTextLength = 200
	maxLinkLength = 2048
)

var (
	minTextTag = "min=" + strconv.Itoa(minTextLength)
	maxTextTag = "max=" + strconv.Itoa(maxTextLength)
)

// Rules holds the per-step validators. Dates are interpreted in Location and
// must fall inside [Start, End]; a zero End leaves the window open.
type Rules struct {
	Start    time.Time
	End      time.Time
	Location *time.Location

	validate *validator.Validate
}

func NewRules(start, end time.Time, loc *time.Location) *Rules {
	if loc == nil {
		loc = time.UTC
	}
	return &Rules{
		Start:    dateOnly(start, loc),
		End:      dateOnly(end, loc),
		Location: loc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Link accepts a single http or https URL.
func (r *Rules) Link(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", &ValidationError{Field: fsm.FieldLink, Reason: ReasonEmpty}
	}
	if utf8.RuneCountInString(text) > maxLinkLength {
		return "", &ValidationError{Field: fsm.FieldLink, Reason: ReasonTooLong}
	}
	if strings.IndexFunc(text, unicode.IsSpace) >= 0 || r.validate.Var(text, "http_url") != nil {
		if LooksLikeQuestion(text) {
			return "", &ValidationError{Field: fsm.FieldLink, Reason: ReasonQuestion}
		}
		return "", &ValidationError{Field: fsm.FieldLink, Reason: ReasonNotURL}
	}
	return text, nil
}

// Date accepts DD.MM.YYYY dates that are not after today and lie inside the
// contest window.
func (r *Rules) Date(raw string, now time.Time) (string, error) {
	text := strings.TrimSpace(raw)
	parsed, err := time.ParseInLocation(DateLayout, text, r.Location)
	if err != nil || parsed.Format(DateLayout) != text {
		return "", &ValidationError{Field: fsm.FieldDate, Reason: ReasonFormat}
	}
	if parsed.After(dateOnly(now, r.Location)) {
		return "", &ValidationError{Field: fsm.FieldDate, Reason: ReasonFuture}
	}
	if !r.Start.IsZero() && parsed.Before(r.Start) {
		return "", &ValidationError{Field: fsm.FieldDate, Reason: ReasonTooEarly}
	}
	if !r.End.IsZero() && parsed.After(r.End) {
		return "", &ValidationError{Field: fsm.FieldDate, Reason: ReasonTooLate}
	}
	return text, nil
}

// Text validates the free-form location and name fields. Values are trimmed
// and never truncated.
func (r *Rules) Text(field fsm.Field, raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", &ValidationError{Field: field, Reason: ReasonEmpty}
	}
	if err := r.validate.Var(text, minTextTag); err != nil {
		return "", &ValidationError{Field: field, Reason: ReasonTooShort}
	}
	if err := r.validate.Var(text, maxTextTag); err != nil {
		return "", &ValidationError{Field: field, Reason: ReasonTooLong}
	}
	return text, nil
}

// LooksLikeQuestion reports whether free text reads like a question rather
// than form input.
func LooksLikeQuestion(text string) bool {
	return strings.Contains(text, "?") || len(strings.Fields(text)) > 3
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
