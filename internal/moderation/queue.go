package moderation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"GuestReportBot/internal/models/domain"
	"GuestReportBot/internal/repositories"
)

var (
	ErrNotFound  = errors.New("report not found")
	ErrDuplicate = errors.New("report id already queued")
	ErrQueueFull = errors.New("moderation queue is full")
)

// Queue holds reports awaiting a decision.
type Queue interface {
	// Enqueue adds r, failing with ErrQueueFull once the queue limit is reached.
	Enqueue(ctx context.Context, r domain.Report) error
	// Resolve removes report id and runs apply on it. Each report is resolved
	// at most once; if apply fails the report stays queued and no decision is
	// recorded.
	Resolve(ctx context.Context, id string, d domain.Decision, adminID int64, apply func(domain.Report) error) (domain.Report, error)
	List(ctx context.Context) ([]domain.Report, error)
	Len(ctx context.Context) (int, error)
}

// MemoryQueue is a process local Queue.
type MemoryQueue struct {
	mu    sync.Mutex
	data  map[string]domain.Report
	limit int
}

// NewMemoryQueue creates a queue holding at most limit reports. Zero means
// unbounded.
func NewMemoryQueue(limit int) *MemoryQueue {
	return &MemoryQueue{data: make(map[string]domain.Report), limit: limit}
}

func (q *MemoryQueue) Enqueue(_ context.Context, r domain.Report) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.data[r.ID]; ok {
		return fmt.Errorf("moderation.Enqueue: %s: %w", r.ID, ErrDuplicate)
	}
	if q.limit > 0 && len(q.data) >= q.limit {
		return fmt.Errorf("moderation.Enqueue: %d pending: %w", len(q.data), ErrQueueFull)
	}
	r.PhotoIDs = slices.Clone(r.PhotoIDs)
	q.data[r.ID] = r
	return nil
}

// Resolve takes the report out under the lock and runs apply without it. A
// failed apply puts the report back even when the queue has filled up since.
func (q *MemoryQueue) Resolve(
	_ context.Context,
	id string,
	_ domain.Decision,
	_ int64,
	apply func(domain.Report) error,
) (domain.Report, error) {
	q.mu.Lock()
	r, ok := q.data[id]
	if ok {
		delete(q.data, id)
	}
	q.mu.Unlock()
	if !ok {
		return domain.Report{}, fmt.Errorf("moderation.Resolve: %s: %w", id, ErrNotFound)
	}

	if apply != nil {
		if err := apply(r); err != nil {
			q.mu.Lock()
			q.data[id] = r
			q.mu.Unlock()
			return domain.Report{}, fmt.Errorf("moderation.Resolve: %s: %w", id, err)
		}
	}
	return r, nil
}

// List returns pending reports, oldest first.
func (q *MemoryQueue) List(_ context.Context) ([]domain.Report, error) {
	q.mu.Lock()
	out := make([]domain.Report, 0, len(q.data))
	for _, r := range q.data {
		out = append(out, r)
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data), nil
}

// PostgresQueue keeps the queue in the pending_reports table so it survives
// restarts. Decisions are logged in report_decisions.
type PostgresQueue struct {
	repo  *repositories.Repository
	limit int
}

func NewPostgresQueue(repo *repositories.Repository, limit int) *PostgresQueue {
	return &PostgresQueue{repo: repo, limit: limit}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, r domain.Report) error {
	err := q.repo.CreatePendingReport(ctx, r, q.limit)
	switch {
	case errors.Is(err, repositories.ErrReportExists):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case errors.Is(err, repositories.ErrQueueFull):
		return fmt.Errorf("%w: %w", ErrQueueFull, err)
	}
	return err
}

func (q *PostgresQueue) Resolve(
	ctx context.Context,
	id string,
	d domain.Decision,
	adminID int64,
	apply func(domain.Report) error,
) (domain.Report, error) {
	r, err := q.repo.ResolvePendingReport(ctx, id, d, adminID, apply)
	if errors.Is(err, repositories.ErrReportNotFound) {
		return domain.Report{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return r, err
}

func (q *PostgresQueue) List(ctx context.Context) ([]domain.Report, error) {
	return q.repo.GetPendingReports(ctx)
}

func (q *PostgresQueue) Len(ctx context.Context) (int, error) {
	return q.repo.CountPendingReports(ctx)
}
