package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/networking-rounds/internal/clock"
	"github.com/example/networking-rounds/internal/lifecycle"
	"github.com/example/networking-rounds/internal/phase"
)

// DefaultDriverInterval is the tick interval used when none is configured.
const DefaultDriverInterval = 60 * time.Second

// Driver applies the transitions that happen purely because time passed.
type Driver struct {
	sessions      *SessionService
	registrations RegistrationRepository
	matching      *MatchingService
	outcomes      *OutcomeService
	notifier      Notifier
	params        phase.Parameters
	transitions   *transitioner
	clock         clock.Clock
	logger        *slog.Logger
}

// NewDriver constructs a driver.
func NewDriver(sessions *SessionService, registrations RegistrationRepository, matches MatchRepository, matchingService *MatchingService, outcomes *OutcomeService, notifier Notifier, c clock.Clock, logger *slog.Logger) *Driver {
	if c == nil {
		c = clock.Real()
	}
	return &Driver{
		sessions:      sessions,
		registrations: registrations,
		matching:      matchingService,
		outcomes:      outcomes,
		notifier:      defaultNotifier(notifier),
		params:        sessions.Parameters(),
		transitions:   &transitioner{registrations: registrations, matches: matches, now: c.Now},
		clock:         c,
		logger:        defaultLogger(logger),
	}
}

// TickReport summarizes one tick.
type TickReport struct {
	SessionsPublished int
	SessionsCompleted int
	SessionsFinalized int
	RoundsProcessed   int
	RoundsFailed      int
	Transitions       int
}

// Run ticks every interval until ctx is cancelled. A tick runs immediately
// on start.
func (d *Driver) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultDriverInterval
	}
	ticker := d.clock.NewTicker(interval)
	defer ticker.Stop()

	logger := serviceLogger(ctx, d.logger, "Driver", "Run", "interval", interval)
	logger.InfoContext(ctx, "transition driver started")

	for {
		if _, err := d.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorContext(ctx, "tick failed", "error", err, "error_kind", ErrorKind(err))
		}
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "transition driver stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one pass over every active session. A failing round is
// logged and skipped; it never stops the others. The returned error is set
// only when the session list itself could not be read.
func (d *Driver) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport
	now := d.clock.Now()
	logger := serviceLogger(ctx, d.logger, "Driver", "Tick", "now", now)

	sessions, err := d.sessions.activeSessions(ctx)
	if err != nil {
		return report, err
	}

	for _, session := range sessions {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		if session.Status == phase.SessionCompleted {
			if err := d.finalize(ctx, session); err != nil {
				report.RoundsFailed++
				logger.ErrorContext(ctx, "failed to finalize session",
					"session_id", session.ID,
					"error", err,
					"error_kind", ErrorKind(err),
				)
				continue
			}
			report.SessionsFinalized++
			continue
		}

		if session.Status == phase.SessionScheduled {
			published, err := d.sessions.publishDue(ctx, session, now)
			if err != nil {
				logger.ErrorContext(ctx, "failed to publish session", "session_id", session.ID, "error", err)
				continue
			}
			if !published {
				continue
			}
			report.SessionsPublished++
			session.Status = phase.SessionPublished
		}

		allDone := true
		for _, round := range session.Rounds {
			done, transitions, err := d.processRound(ctx, session, round, now)
			report.Transitions += transitions
			if err != nil {
				report.RoundsFailed++
				allDone = false
				logger.ErrorContext(ctx, "round processing failed",
					"session_id", session.ID,
					"round_id", round.ID,
					"error", err,
					"error_kind", ErrorKind(err),
				)
				continue
			}
			report.RoundsProcessed++
			allDone = allDone && done
		}

		if allDone {
			completed, err := d.sessions.completeFinished(ctx, session, now)
			if err != nil {
				logger.ErrorContext(ctx, "failed to complete session", "session_id", session.ID, "error", err)
				continue
			}
			if completed {
				report.SessionsCompleted++
			}
		}
	}

	if report.Transitions > 0 || report.RoundsFailed > 0 || report.SessionsPublished > 0 || report.SessionsCompleted > 0 || report.SessionsFinalized > 0 {
		logger.InfoContext(ctx, "tick finished",
			"sessions_published", report.SessionsPublished,
			"sessions_completed", report.SessionsCompleted,
			"sessions_finalized", report.SessionsFinalized,
			"rounds_processed", report.RoundsProcessed,
			"rounds_failed", report.RoundsFailed,
			"transitions", report.Transitions,
		)
	}
	return report, nil
}

// processRound applies the automatic transitions due for one round at now.
// done reports that the round is completed and its outcomes are recorded.
func (d *Driver) processRound(ctx context.Context, session Session, round Round, now time.Time) (done bool, transitions int, err error) {
	p := phase.Compute(session.Status, round.Window(), d.params, now)
	if p.Before(phase.WaitingForConfirmation) {
		return false, 0, nil
	}

	if p.Before(phase.Matching) {
		transitions, err = d.enterConfirmationWindow(ctx, session, round, p)
		return false, transitions, err
	}

	if p == phase.Completed {
		recorded, err := d.outcomes.outcomesRecorded(ctx, session, round)
		if err != nil {
			return false, 0, err
		}
		if recorded {
			return true, 0, nil
		}
	}

	transitions, err = d.autoUnconfirm(ctx, session, round, p)
	if err != nil {
		return false, transitions, err
	}
	if _, err = d.matching.RunMatching(ctx, session, round); err != nil {
		return false, transitions, err
	}
	if p != phase.Completed {
		return false, transitions, nil
	}
	if err = d.outcomes.RecordRoundOutcomes(ctx, session, round); err != nil {
		return false, transitions, err
	}
	return true, transitions, nil
}

// finalize records the outcomes of every matched round of a session the
// organizer completed early. Rounds that were never matched are left as they
// are. Any failure leaves the session unfinalized for the next tick.
func (d *Driver) finalize(ctx context.Context, session Session) error {
	for _, round := range session.Rounds {
		matched, recorded, err := d.outcomes.planState(ctx, session, round)
		if err != nil {
			return err
		}
		if !matched || recorded {
			continue
		}
		// Finish materializing a plan interrupted by the completion.
		if _, err := d.matching.RunMatching(ctx, session, round); err != nil {
			return fmt.Errorf("round %s: %w", round.ID, err)
		}
		if err := d.outcomes.RecordRoundOutcomes(ctx, session, round); err != nil {
			return fmt.Errorf("round %s: %w", round.ID, err)
		}
	}
	return d.sessions.markFinalized(ctx, session.ID)
}

// enterConfirmationWindow moves registered participants to
// waiting-for-confirmation.
func (d *Driver) enterConfirmationWindow(ctx context.Context, session Session, round Round, p phase.Phase) (int, error) {
	registrations, err := d.registrations.ListRegistrationsForRound(ctx, session.ID, round.ID)
	if err != nil {
		return 0, mapRepoError("list registrations", err)
	}

	logger := serviceLogger(ctx, d.logger, "Driver", "EnterConfirmationWindow", "round_id", round.ID)
	changed := 0
	for _, r := range registrations {
		if r.Status != lifecycle.StatusRegistered {
			continue
		}
		updated, outcome, err := d.transitions.advance(ctx, r.ID, step{
			input:   lifecycle.Input{Event: lifecycle.EventEnterConfirmationWindow},
			roundID: round.ID,
			phase:   p,
		})
		if err != nil {
			return changed, err
		}
		if !outcome.Changed {
			continue
		}
		changed++
		if session.NotifyOnConfirmationWindow {
			send(ctx, logger, d.notifier, Notification{
				Template:    TemplateConfirmationWindow,
				Participant: updated.Participant,
				Variables: map[string]any{
					"session_title":   session.Title,
					"round_name":      round.Name,
					"round_start":     round.StartsAt,
					"registration_id": updated.ID,
				},
			})
		}
	}
	return changed, nil
}

// autoUnconfirm marks every registration that did not confirm in time.
func (d *Driver) autoUnconfirm(ctx context.Context, session Session, round Round, p phase.Phase) (int, error) {
	registrations, err := d.registrations.ListRegistrationsForRound(ctx, session.ID, round.ID)
	if err != nil {
		return 0, mapRepoError("list registrations", err)
	}

	changed := 0
	for _, r := range registrations {
		switch r.Status {
		case lifecycle.StatusPendingVerification, lifecycle.StatusRegistered, lifecycle.StatusWaitingForConfirmation:
		default:
			continue
		}
		// advance re-reads the record, so a confirmation that landed since
		// the listing turns this into a no-op.
		_, outcome, err := d.transitions.advance(ctx, r.ID, step{
			input:   lifecycle.Input{Event: lifecycle.EventAutoUnconfirm},
			roundID: round.ID,
			phase:   p,
		})
		if err != nil {
			return changed, fmt.Errorf("auto-unconfirm %s: %w", r.ID, err)
		}
		if outcome.Changed {
			changed++
		}
	}
	return changed, nil
}
