package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"GuestReportBot/internal/models/domain"
	"GuestReportBot/internal/publisher"
	"GuestReportBot/internal/utils/logger/sl"

	"github.com/google/uuid"
)

// Publisher is the outbound side of moderation.
type Publisher interface {
	Broadcast(ctx context.Context, r domain.Report) error
	NotifyAdmins(ctx context.Context, r domain.Report, admins []int64) []publisher.Delivery
	NotifyUser(ctx context.Context, userID int64, outcome publisher.Outcome)
}

// Service queues submitted reports and applies moderator decisions.
type Service struct {
	queue  Queue
	pub    Publisher
	admins []int64
	log    *slog.Logger
}

// New creates a moderation service. The queue enforces its own size limit.
func New(logger *slog.Logger, queue Queue, pub Publisher, admins []int64) *Service {
	return &Service{
		queue:  queue,
		pub:    pub,
		admins: admins,
		log:    logger.With(slog.String("component", "moderation")),
	}
}

// NewID returns a fresh report ID.
func NewID() string {
	return uuid.NewString()
}

// Submit queues r and sends it to every administrator.
func (s *Service) Submit(ctx context.Context, r domain.Report) error {
	op := "moderation.Submit"
	log := s.log.With(slog.String("op", op), slog.String("report_id", r.ID))

	if err := s.queue.Enqueue(ctx, r); err != nil {
		if errors.Is(err, ErrQueueFull) {
			log.Warn("moderation queue is full")
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	results := s.pub.NotifyAdmins(ctx, r, s.admins)
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	log.Info("report queued",
		slog.Int64("submitter_id", r.Submitter.ID),
		slog.Int("photos", len(r.PhotoIDs)),
		slog.Int("admins_notified", len(results)-failed),
		slog.Int("admins_failed", failed),
	)
	return nil
}

// Resolve applies decision d to report id. A report already resolved yields
// ErrNotFound and nothing is published. An approve whose broadcast fails
// leaves the report queued so the decision can be retried.
func (s *Service) Resolve(ctx context.Context, id string, d domain.Decision, adminID int64) (domain.Report, error) {
	op := "moderation.Resolve"
	log := s.log.With(
		slog.String("op", op),
		slog.String("report_id", id),
		slog.String("decision", string(d)),
		slog.Int64("admin_id", adminID),
	)

	if d != domain.DecisionApprove && d != domain.DecisionReject {
		return domain.Report{}, fmt.Errorf("%s: unknown decision %q", op, d)
	}

	r, err := s.queue.Resolve(ctx, id, d, adminID, func(r domain.Report) error {
		if d == domain.DecisionApprove {
			return s.pub.Broadcast(ctx, r)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Info("report already resolved or unknown")
		} else {
			log.Error("report stays queued", sl.Err(err))
		}
		return domain.Report{}, fmt.Errorf("%s: %w", op, err)
	}

	outcome := publisher.OutcomeApproved
	if d == domain.DecisionReject {
		outcome = publisher.OutcomeRejected
	}
	s.pub.NotifyUser(ctx, r.Submitter.ID, outcome)
	log.Info("report resolved")
	return r, nil
}

// Pending lists reports awaiting a decision.
func (s *Service) Pending(ctx context.Context) ([]domain.Report, error) {
	op := "moderation.Pending"
	reports, err := s.queue.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return reports, nil
}
