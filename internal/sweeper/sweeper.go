// Package sweeper nudges participants with stale drafts and expires drafts
// that were abandoned.
package sweeper

import (
	"context"
	"time"

	"github.com/ad/go-telegram-contest/internal/intake"
	"github.com/ad/go-telegram-contest/internal/metrics"
	"github.com/ad/go-telegram-contest/internal/models"
	"github.com/ad/go-telegram-contest/internal/transport"
	"github.com/rs/zerolog"
)

const (
	textNudge   = "⏳ Вы начали подавать заявку, но не закончили. Продолжим?"
	textExpired = "⌛ Черновик заявки удалён: он не заполнялся больше суток. Начните заново из меню."
)

type CheckpointStore interface {
	GetAll(ctx context.Context) ([]*models.Checkpoint, []error, error)
	Clear(ctx context.Context, participantID int64, now time.Time) error
}

type Config struct {
	Interval    time.Duration
	NudgeAfter  time.Duration
	NudgeBefore time.Duration
	ExpireAfter time.Duration

	// Nudges are not sent while the local hour is in [QuietStart, QuietEnd).
	// The window may wrap midnight. Equal bounds disable quiet hours.
	QuietStart int
	QuietEnd   int
	Location   *time.Location

	SendDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:    time.Hour,
		NudgeAfter:  time.Hour,
		NudgeBefore: 2 * time.Hour,
		ExpireAfter: 24 * time.Hour,
		QuietStart:  22,
		QuietEnd:    9,
		Location:    time.UTC,
		SendDelay:   50 * time.Millisecond,
	}
}

// Report summarises one sweep.
type Report struct {
	Scanned       int
	InProgress    int
	Nudged        int
	Expired       int
	QuietSkipped  int
	AlreadyNudged int
	Failed        int
}

type Sweeper struct {
	checkpoints CheckpointStore
	messenger   transport.Messenger
	ledger      Ledger
	cfg         Config
	logger      zerolog.Logger
	now         func() time.Time
}

// New builds a sweeper. ledger may be nil, then at most one nudge per draft
// relies on the interval being no shorter than the nudge window.
func New(checkpoints CheckpointStore, messenger transport.Messenger, ledger Ledger, cfg Config, logger zerolog.Logger) *Sweeper {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Sweeper{
		checkpoints: checkpoints,
		messenger:   messenger,
		ledger:      ledger,
		cfg:         cfg,
		logger:      logger.With().Str("component", "sweeper").Logger(),
		now:         time.Now,
	}
}

func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		report := s.SweepOnce(ctx)
		s.logger.Info().
			Int("scanned", report.Scanned).
			Int("in_progress", report.InProgress).
			Int("nudged", report.Nudged).
			Int("expired", report.Expired).
			Int("quiet_skipped", report.QuietSkipped).
			Int("failed", report.Failed).
			Msg("sweep finished")

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce scans every checkpoint. A failure for one participant is counted
// and never stops the scan.
func (s *Sweeper) SweepOnce(ctx context.Context) Report {
	var report Report
	defer metrics.SweepRuns().Inc()

	checkpoints, broken, err := s.checkpoints.GetAll(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("load checkpoints")
		report.Failed++
		metrics.SweepResults().WithLabelValues("failed").Inc()
		return report
	}
	for _, err := range broken {
		s.logger.Warn().Err(err).Msg("skipping unreadable checkpoint")
		report.Failed++
		metrics.SweepResults().WithLabelValues("failed").Inc()
	}

	now := s.now()
	sent := 0
	for _, cp := range checkpoints {
		if ctx.Err() != nil {
			return report
		}
		report.Scanned++
		if !cp.InProgress() {
			continue
		}
		report.InProgress++

		started := cp.StartedAt
		if started.IsZero() {
			started = cp.UpdatedAt
		}
		if started.IsZero() {
			continue
		}
		elapsed := now.Sub(started)

		switch {
		case elapsed > s.cfg.ExpireAfter:
			if sent > 0 && !s.pause(ctx) {
				return report
			}
			sent++
			s.expire(ctx, cp, &report)
		case elapsed >= s.cfg.NudgeAfter && elapsed < s.cfg.NudgeBefore:
			if s.quiet(now) {
				report.QuietSkipped++
				metrics.SweepResults().WithLabelValues("quiet_skipped").Inc()
				continue
			}
			if sent > 0 && !s.pause(ctx) {
				return report
			}
			sent++
			s.nudge(ctx, cp, &report)
		}
	}
	return report
}

func (s *Sweeper) expire(ctx context.Context, cp *models.Checkpoint, report *Report) {
	log := s.logger.With().Int64("participant_id", cp.ParticipantID).Logger()
	if err := s.checkpoints.Clear(ctx, cp.ParticipantID, s.now()); err != nil {
		log.Error().Err(err).Msg("expire draft")
		report.Failed++
		metrics.SweepResults().WithLabelValues("failed").Inc()
		return
	}
	report.Expired++
	metrics.SweepResults().WithLabelValues("expired").Inc()
	log.Info().Str("phase", string(cp.Phase)).Msg("draft expired")

	if _, err := s.messenger.Send(ctx, cp.ParticipantID, textExpired, nil); err != nil {
		log.Warn().Err(err).Msg("notify expired draft")
	}
}

func (s *Sweeper) nudge(ctx context.Context, cp *models.Checkpoint, report *Report) {
	log := s.logger.With().Int64("participant_id", cp.ParticipantID).Logger()
	if s.ledger != nil {
		first, err := s.ledger.MarkNudged(ctx, cp.ParticipantID, cp.StartedAt, s.cfg.ExpireAfter)
		if err != nil {
			log.Error().Err(err).Msg("nudge ledger")
			report.Failed++
			metrics.SweepResults().WithLabelValues("failed").Inc()
			return
		}
		if !first {
			report.AlreadyNudged++
			return
		}
	}

	if _, err := s.messenger.Send(ctx, cp.ParticipantID, textNudge, intake.NudgeKeyboard()); err != nil {
		log.Error().Err(err).Msg("send nudge")
		report.Failed++
		metrics.SweepResults().WithLabelValues("failed").Inc()
		if s.ledger != nil {
			if err := s.ledger.Forget(ctx, cp.ParticipantID, cp.StartedAt); err != nil {
				log.Warn().Err(err).Msg("release nudge ledger entry")
			}
		}
		return
	}
	report.Nudged++
	metrics.SweepResults().WithLabelValues("nudged").Inc()
}

func (s *Sweeper) quiet(now time.Time) bool {
	start, end := s.cfg.QuietStart, s.cfg.QuietEnd
	if start == end {
		return false
	}
	h := now.In(s.cfg.Location).Hour()
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

func (s *Sweeper) pause(ctx context.Context) bool {
	if s.cfg.SendDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.cfg.SendDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
