package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"conveyance/internal/record"
	"conveyance/internal/workflow/metrics"
	id "conveyance/pkg/domain"
)

// Trigger is a booked transfer: when FireAt passes, the title named by the
// agreement changes hands.
type Trigger struct {
	ID          uuid.UUID
	TitleID     id.LinearID
	AgreementID id.LinearID
	FireAt      time.Time
	Attempts    int
}

// TriggerStore persists transfer triggers so a restart does not lose a
// booked completion date.
type TriggerStore interface {
	Add(ctx context.Context, t Trigger) error

	// Due returns every unfired trigger whose fire time has passed.
	Due(ctx context.Context, now time.Time) ([]Trigger, error)

	MarkFired(ctx context.Context, triggerID uuid.UUID) error

	// MarkFailed bumps the attempt counter; the trigger stays due and is
	// retried on the next poll.
	MarkFailed(ctx context.Context, triggerID uuid.UUID) error
}

// Scheduler polls the trigger store and runs the transfer for each due
// trigger. It implements TransferScheduler for the workflow service.
type Scheduler struct {
	store    TriggerStore
	service  *Service
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type SchedulerOption func(*Scheduler)

func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.interval = d }
}

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

func WithSchedulerMetrics(m *metrics.Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

func NewScheduler(store TriggerStore, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:    store,
		interval: 15 * time.Second,
		logger:   slog.Default(),
		metrics:  metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind attaches the workflow service whose TransferTitle the scheduler
// drives. Wired after construction because the service also holds the
// scheduler for booking.
func (s *Scheduler) Bind(svc *Service) { s.service = svc }

func (s *Scheduler) ScheduleTransfer(ctx context.Context, titleID, agreementID id.LinearID, at time.Time) error {
	t := Trigger{
		ID:          uuid.New(),
		TitleID:     titleID,
		AgreementID: agreementID,
		FireAt:      at,
	}
	if err := s.store.Add(ctx, t); err != nil {
		return fmt.Errorf("schedule transfer: %w", err)
	}
	s.metrics.TriggerScheduled()
	s.logger.InfoContext(ctx, "transfer scheduled",
		"trigger_id", t.ID, "agreement_id", agreementID, "fire_at", at)
	return nil
}

// Run polls until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.fireDue(ctx, now)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	due, err := s.store.Due(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "poll triggers failed", "error", err)
		return
	}
	for _, t := range due {
		s.fire(ctx, t)
	}
}

func (s *Scheduler) fire(ctx context.Context, t Trigger) {
	if s.service == nil {
		s.logger.ErrorContext(ctx, "scheduler not bound to a service", "trigger_id", t.ID)
		return
	}

	if _, agreement, err := current[record.Agreement](ctx, s.service, record.KindAgreement, t.AgreementID); err == nil &&
		agreement.Status == record.AgreementTransferred {
		// Someone ran the transfer manually; retire the trigger.
		if err := s.store.MarkFired(ctx, t.ID); err != nil {
			s.logger.ErrorContext(ctx, "mark trigger fired", "trigger_id", t.ID, "error", err)
		}
		s.metrics.TriggerFired(metrics.ResultConflict)
		return
	}

	if _, err := s.service.TransferTitle(ctx, t.AgreementID); err != nil {
		s.logger.ErrorContext(ctx, "scheduled transfer failed",
			"trigger_id", t.ID, "agreement_id", t.AgreementID, "attempts", t.Attempts+1, "error", err)
		if err := s.store.MarkFailed(ctx, t.ID); err != nil {
			s.logger.ErrorContext(ctx, "mark trigger failed", "trigger_id", t.ID, "error", err)
		}
		s.metrics.TriggerRetried()
		return
	}

	if err := s.store.MarkFired(ctx, t.ID); err != nil {
		s.logger.ErrorContext(ctx, "mark trigger fired", "trigger_id", t.ID, "error", err)
	}
	s.metrics.TriggerFired(metrics.ResultCommitted)
	s.logger.InfoContext(ctx, "scheduled transfer committed",
		"trigger_id", t.ID, "agreement_id", t.AgreementID)
}
