// Package intake drives the multi-step submission dialogue. The durable
// checkpoint is the source of truth; the in-process Tracker only detects when
// this process lost track of a dialogue (restart, another instance).
package intake

import (
	"context"
	"errors"
	"time"

	"github.com/ad/go-telegram-contest/internal/db"
	"github.com/ad/go-telegram-contest/internal/fsm"
	"github.com/ad/go-telegram-contest/internal/metrics"
	"github.com/ad/go-telegram-contest/internal/models"
	"github.com/ad/go-telegram-contest/internal/transport"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
)

type CheckpointStore interface {
	Get(ctx context.Context, participantID int64) (*models.Checkpoint, error)
	Save(ctx context.Context, cp *models.Checkpoint) error
	Clear(ctx context.Context, participantID int64, now time.Time) error
	// SetPromptRef stores the prompt message id only while the participant
	// is still in phase of the draft started at startedAt, and reports
	// whether it did.
	SetPromptRef(ctx context.Context, participantID int64, startedAt time.Time, phase fsm.Phase, ref int) (bool, error)
}

// SubmissionStore must return db.ErrNotFound from FindByLink when the
// participant has no submission with that link.
type SubmissionStore interface {
	FindByLink(ctx context.Context, participantID int64, link string) (*models.Submission, error)
	Create(ctx context.Context, s *models.Submission) error
}

type AdminDirectory interface {
	Admins(ctx context.Context) ([]int64, error)
}

type InputKind int

const (
	InputText InputKind = iota
	InputMedia
	InputButton
)

// Event is one inbound participant action.
type Event struct {
	ParticipantID int64
	Username      string
	FullName      string
	Kind          InputKind
	Text          string
	Button        string
	MessageID     int
}

type OutcomeKind string

const (
	OutcomeIgnored   OutcomeKind = "ignored"
	OutcomeStarted   OutcomeKind = "started"
	OutcomeAdvanced  OutcomeKind = "advanced"
	OutcomeRejected  OutcomeKind = "rejected"
	OutcomeCommitted OutcomeKind = "committed"
	OutcomeCancelled OutcomeKind = "cancelled"
	OutcomeRecovery  OutcomeKind = "recovery"
	OutcomeResumed   OutcomeKind = "resumed"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome reports what an event did. Phase is the durable phase afterwards.
// Err is a *ValidationError, *DuplicateLinkError or *PersistenceError for
// rejected and failed events.
type Outcome struct {
	Kind       OutcomeKind
	Phase      fsm.Phase
	Err        error
	Submission *models.Submission
}

// Handled reports whether the dialogue consumed the event.
func (o Outcome) Handled() bool {
	return o.Kind != OutcomeIgnored
}

type Machine struct {
	checkpoints CheckpointStore
	submissions SubmissionStore
	messenger   transport.Messenger
	admins      AdminDirectory
	rules       *Rules
	tracker     *Tracker
	locks       *participantLocks
	logger      zerolog.Logger

	now       func() time.Time
	sendDelay time.Duration
}

func NewMachine(
	checkpoints CheckpointStore,
	submissions SubmissionStore,
	messenger transport.Messenger,
	admins AdminDirectory,
	rules *Rules,
	tracker *Tracker,
	logger zerolog.Logger,
) *Machine {
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Machine{
		checkpoints: checkpoints,
		submissions: submissions,
		messenger:   messenger,
		admins:      admins,
		rules:       rules,
		tracker:     tracker,
		locks:       newParticipantLocks(),
		logger:      logger.With().Str("component", "intake").Logger(),
		now:         time.Now,
	}
}

func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// SetSendDelay sets the pause between successive admin notifications.
func (m *Machine) SetSendDelay(d time.Duration) {
	m.sendDelay = d
}

// Start opens a new draft, or offers recovery when one is already open.
func (m *Machine) Start(ctx context.Context, participantID int64) Outcome {
	defer m.locks.lock(participantID)()

	cp, err := m.checkpoints.Get(ctx, participantID)
	if err != nil {
		return m.fail(ctx, participantID, fsm.PhaseIdle, "load checkpoint", err)
	}
	if cp.InProgress() {
		return m.offerRecovery(ctx, cp)
	}
	return m.open(ctx, participantID, OutcomeStarted)
}

// HandleInput feeds text, media or a dialogue button to the current step.
func (m *Machine) HandleInput(ctx context.Context, ev Event) Outcome {
	defer m.locks.lock(ev.ParticipantID)()

	if ev.Kind == InputButton {
		switch ev.Button {
		case CallbackConfirm:
			return m.confirm(ctx, ev)
		case CallbackCancel:
			return m.discard(ctx, ev.ParticipantID, textCancelled)
		case CallbackResume:
			return m.resume(ctx, ev.ParticipantID)
		case CallbackRestart:
			return m.open(ctx, ev.ParticipantID, OutcomeStarted)
		case CallbackMenu:
			return m.discard(ctx, ev.ParticipantID, textMenuReturn)
		default:
			return m.record(Outcome{Kind: OutcomeIgnored, Phase: m.tracker.Get(ev.ParticipantID)})
		}
	}

	cp, err := m.checkpoints.Get(ctx, ev.ParticipantID)
	if err != nil {
		return m.fail(ctx, ev.ParticipantID, m.tracker.Get(ev.ParticipantID), "load checkpoint", err)
	}
	if !cp.InProgress() {
		// Expired or finished elsewhere.
		m.tracker.Clear(ev.ParticipantID)
		return m.record(Outcome{Kind: OutcomeIgnored, Phase: fsm.PhaseIdle})
	}
	if m.tracker.Get(ev.ParticipantID) != cp.Phase {
		return m.offerRecovery(ctx, cp)
	}

	field, collects := cp.Phase.Collects()
	if !collects {
		return m.reject(ctx, cp, &ValidationError{Field: fsm.FieldConfirmation, Reason: ReasonNotButton})
	}
	if ev.Kind != InputText {
		return m.reject(ctx, cp, &ValidationError{Field: field, Reason: ReasonNotText})
	}

	value, err := m.validate(ctx, cp, field, ev.Text)
	if err != nil {
		var perr *PersistenceError
		if errors.As(err, &perr) {
			return m.fail(ctx, cp.ParticipantID, cp.Phase, perr.Op, perr.Err)
		}
		return m.reject(ctx, cp, err)
	}

	next := cp.Advance(field, value, m.now())
	if err := m.checkpoints.Save(ctx, next); err != nil {
		return m.fail(ctx, cp.ParticipantID, cp.Phase, "save checkpoint", err)
	}
	m.tracker.Set(next.ParticipantID, next.Phase)
	m.prompt(ctx, next, "")

	return m.record(Outcome{Kind: OutcomeAdvanced, Phase: next.Phase})
}

// Cancel discards the participant's draft.
func (m *Machine) Cancel(ctx context.Context, participantID int64) Outcome {
	defer m.locks.lock(participantID)()
	return m.discard(ctx, participantID, textCancelled)
}

// Resume re-issues the prompt of the durable phase and re-syncs the tracker.
func (m *Machine) Resume(ctx context.Context, participantID int64) Outcome {
	defer m.locks.lock(participantID)()
	return m.resume(ctx, participantID)
}

func (m *Machine) resume(ctx context.Context, participantID int64) Outcome {
	cp, err := m.checkpoints.Get(ctx, participantID)
	if err != nil {
		return m.fail(ctx, participantID, m.tracker.Get(participantID), "load checkpoint", err)
	}
	if !cp.InProgress() {
		m.tracker.Clear(participantID)
		return m.record(Outcome{Kind: OutcomeIgnored, Phase: fsm.PhaseIdle})
	}
	m.tracker.Set(participantID, cp.Phase)
	m.prompt(ctx, cp, "")
	return m.record(Outcome{Kind: OutcomeResumed, Phase: cp.Phase})
}

// Restart drops the collected data and asks for the link again.
func (m *Machine) Restart(ctx context.Context, participantID int64) Outcome {
	defer m.locks.lock(participantID)()
	return m.open(ctx, participantID, OutcomeStarted)
}

func (m *Machine) open(ctx context.Context, participantID int64, kind OutcomeKind) Outcome {
	cp := models.NewCheckpoint(participantID, m.now())
	if err := m.checkpoints.Save(ctx, cp); err != nil {
		return m.fail(ctx, participantID, m.tracker.Get(participantID), "save checkpoint", err)
	}
	m.tracker.Set(participantID, cp.Phase)
	m.prompt(ctx, cp, "")
	return m.record(Outcome{Kind: kind, Phase: cp.Phase})
}

func (m *Machine) discard(ctx context.Context, participantID int64, text string) Outcome {
	cp, err := m.checkpoints.Get(ctx, participantID)
	if err != nil {
		return m.fail(ctx, participantID, m.tracker.Get(participantID), "load checkpoint", err)
	}
	if !cp.InProgress() {
		m.tracker.Clear(participantID)
		return m.record(Outcome{Kind: OutcomeIgnored, Phase: fsm.PhaseIdle})
	}
	if err := m.checkpoints.Clear(ctx, participantID, m.now()); err != nil {
		return m.fail(ctx, participantID, cp.Phase, "clear checkpoint", err)
	}
	m.tracker.Clear(participantID)

	if cp.LastPromptRef != 0 {
		if err := m.messenger.Edit(ctx, participantID, cp.LastPromptRef, text, nil); err != nil {
			m.logger.Debug().Err(err).Int64("participant_id", participantID).Msg("edit last prompt")
			m.send(ctx, participantID, text, nil)
		}
	} else {
		m.send(ctx, participantID, text, nil)
	}
	return m.record(Outcome{Kind: OutcomeCancelled, Phase: fsm.PhaseIdle})
}

func (m *Machine) validate(ctx context.Context, cp *models.Checkpoint, field fsm.Field, text string) (string, error) {
	switch field {
	case fsm.FieldLink:
		link, err := m.rules.Link(text)
		if err != nil {
			return "", err
		}
		existing, err := m.submissions.FindByLink(ctx, cp.ParticipantID, link)
		switch {
		case err == nil:
			return "", &DuplicateLinkError{Link: link, SubmissionID: existing.ID}
		case errors.Is(err, db.ErrNotFound):
			return link, nil
		default:
			return "", &PersistenceError{Op: "find submission by link", Err: err}
		}
	case fsm.FieldDate:
		return m.rules.Date(text, m.now())
	default:
		return m.rules.Text(field, text)
	}
}

func (m *Machine) confirm(ctx context.Context, ev Event) Outcome {
	pid := ev.ParticipantID
	cp, err := m.checkpoints.Get(ctx, pid)
	if err != nil {
		return m.fail(ctx, pid, m.tracker.Get(pid), "load checkpoint", err)
	}
	if !cp.InProgress() {
		// Already committed or cancelled; a replayed button press.
		m.tracker.Clear(pid)
		return m.record(Outcome{Kind: OutcomeIgnored, Phase: fsm.PhaseIdle})
	}
	if cp.Phase != fsm.PhaseAwaitingConfirmation {
		return m.offerRecovery(ctx, cp)
	}
	if err := cp.Validate(); err != nil {
		m.logger.Error().Err(err).Int64("participant_id", pid).Msg("inconsistent draft at confirmation")
		return m.offerRecovery(ctx, cp)
	}
	m.tracker.Set(pid, cp.Phase)
	return m.commit(ctx, ev, cp)
}

// commit stores the submission, then clears the checkpoint. A retry after a
// failed clear finds the stored submission by link and reuses it.
func (m *Machine) commit(ctx context.Context, ev Event, cp *models.Checkpoint) Outcome {
	pid := cp.ParticipantID
	link := cp.Data[fsm.FieldLink]

	sub, err := m.submissions.FindByLink(ctx, pid, link)
	switch {
	case err == nil:
		if !sameEntry(sub, cp) {
			return m.reject(ctx, cp, &DuplicateLinkError{Link: link, SubmissionID: sub.ID})
		}
		m.logger.Info().Str("submission_id", sub.ID).Msg("reusing submission stored by an earlier attempt")
	case errors.Is(err, db.ErrNotFound):
		now := m.now()
		sub = &models.Submission{
			ID:            models.NewSubmissionID(pid, now),
			ParticipantID: pid,
			Username:      ev.Username,
			FullName:      ev.FullName,
			Link:          link,
			Date:          cp.Data[fsm.FieldDate],
			Location:      cp.Data[fsm.FieldLocation],
			Name:          cp.Data[fsm.FieldName],
			SubmittedAt:   now,
		}
		if err := m.submissions.Create(ctx, sub); err != nil {
			return m.fail(ctx, pid, cp.Phase, "create submission", err)
		}
	default:
		return m.fail(ctx, pid, cp.Phase, "find submission by link", err)
	}

	if err := m.checkpoints.Clear(ctx, pid, m.now()); err != nil {
		return m.fail(ctx, pid, cp.Phase, "clear checkpoint", err)
	}
	m.tracker.Clear(pid)

	if cp.LastPromptRef != 0 {
		if err := m.messenger.Edit(ctx, pid, cp.LastPromptRef, "Заявка:\n\n"+summary(cp.Data), nil); err != nil {
			m.logger.Debug().Err(err).Int64("participant_id", pid).Msg("edit confirmation prompt")
		}
	}
	m.send(ctx, pid, textAccepted, nil)
	m.notifyAdmins(ctx, sub)

	m.logger.Info().
		Int64("participant_id", pid).
		Str("submission_id", sub.ID).
		Msg("submission committed")
	return m.record(Outcome{Kind: OutcomeCommitted, Phase: fsm.PhaseIdle, Submission: sub})
}

func sameEntry(s *models.Submission, cp *models.Checkpoint) bool {
	return s.Date == cp.Data[fsm.FieldDate] &&
		s.Location == cp.Data[fsm.FieldLocation] &&
		s.Name == cp.Data[fsm.FieldName]
}

func (m *Machine) notifyAdmins(ctx context.Context, sub *models.Submission) {
	admins, err := m.admins.Admins(ctx)
	if err != nil {
		m.logger.Error().Err(err).Str("submission_id", sub.ID).Msg("load admins for notification")
		return
	}

	text := AdminNotification(sub)
	for i, adminID := range admins {
		if i > 0 && !sleep(ctx, m.sendDelay) {
			return
		}
		if _, err := m.messenger.Send(ctx, adminID, text, ReviewKeyboard(sub.ID)); err != nil {
			m.logger.Error().Err(err).Int64("admin_id", adminID).Str("submission_id", sub.ID).Msg("notify admin")
		}
	}
}

func (m *Machine) offerRecovery(ctx context.Context, cp *models.Checkpoint) Outcome {
	m.send(ctx, cp.ParticipantID, recoveryText(cp.Phase), recoveryKeyboard())
	return m.record(Outcome{Kind: OutcomeRecovery, Phase: cp.Phase})
}

func (m *Machine) reject(ctx context.Context, cp *models.Checkpoint, err error) Outcome {
	var (
		verr   *ValidationError
		markup = promptKeyboard(cp.Phase)
	)
	if errors.As(err, &verr) && verr.Reason == ReasonQuestion {
		markup = questionKeyboard()
	}
	m.prompt(ctx, cp, m.rejectionText(err), markup)
	return m.record(Outcome{Kind: OutcomeRejected, Phase: cp.Phase, Err: err})
}

func (m *Machine) fail(ctx context.Context, participantID int64, phase fsm.Phase, op string, err error) Outcome {
	m.logger.Error().Err(err).Int64("participant_id", participantID).Str("op", op).Msg("submission dialogue failed")
	m.send(ctx, participantID, textApology, nil)
	return m.record(Outcome{Kind: OutcomeFailed, Phase: phase, Err: &PersistenceError{Op: op, Err: err}})
}

// prompt sends the question of the checkpoint's phase, prefixed by note, and
// remembers the message id on the checkpoint. The checkpoint is already
// persisted; losing the id only disables editing the prompt later. The id is
// not written when the draft moved on meanwhile, so an expiry by the sweeper
// is never undone.
func (m *Machine) prompt(ctx context.Context, cp *models.Checkpoint, note string, markup ...*tgmodels.InlineKeyboardMarkup) {
	text := promptText(cp)
	if note != "" {
		text = note + "\n\n" + text
	}
	kb := promptKeyboard(cp.Phase)
	if len(markup) > 0 {
		kb = markup[0]
	}

	msgID, ok := m.send(ctx, cp.ParticipantID, text, kb)
	if !ok {
		return
	}
	cp.LastPromptRef = msgID
	stored, err := m.checkpoints.SetPromptRef(ctx, cp.ParticipantID, cp.StartedAt, cp.Phase, msgID)
	switch {
	case err != nil:
		m.logger.Warn().Err(err).Int64("participant_id", cp.ParticipantID).Msg("save prompt reference")
	case !stored:
		m.logger.Debug().Int64("participant_id", cp.ParticipantID).Msg("draft changed before the prompt reference was saved")
	}
}

func (m *Machine) send(ctx context.Context, chatID int64, text string, markup *tgmodels.InlineKeyboardMarkup) (int, bool) {
	msgID, err := m.messenger.Send(ctx, chatID, text, markup)
	if err != nil {
		m.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send message")
		return 0, false
	}
	return msgID, true
}

func (m *Machine) record(o Outcome) Outcome {
	metrics.IntakeOutcomes().WithLabelValues(string(o.Kind)).Inc()
	return o
}

// sleep waits for d or until ctx is done, reporting whether the wait finished.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
