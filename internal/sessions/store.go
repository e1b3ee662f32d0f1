package sessions

import (
	"context"
	"errors"

	"GuestReportBot/internal/models/domain"
)

// ErrNotFound is returned when a user has no active session.
var ErrNotFound = errors.New("session not found")

// Store keeps intake sessions keyed by user ID.
type Store interface {
	Get(ctx context.Context, userID int64) (*domain.Session, error)
	Save(ctx context.Context, sess *domain.Session) error
	Delete(ctx context.Context, userID int64) error
}
