package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"GuestReportBot/internal/models/domain"
)

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestRedisRoundTrip(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	store := NewRedis(client, "intake:session:", time.Minute)
	ctx := context.Background()

	in := &domain.Session{
		UserID:   77,
		Step:     domain.StepPhotos,
		Country:  "Россия",
		City:     "Москва",
		PhotoIDs: []string{"f1", "f2"},
	}
	if err := store.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("intake:session:77") {
		t.Fatal("expected key intake:session:77")
	}

	got, err := store.Get(ctx, 77)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Step != domain.StepPhotos || got.Country != "Россия" || got.City != "Москва" || len(got.PhotoIDs) != 2 {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestRedisTTL(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	store := NewRedis(client, "s:", time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, &domain.Session{UserID: 1, Step: domain.StepCity}); err != nil {
		t.Fatalf("save: %v", err)
	}

	mr.FastForward(61 * time.Second)

	if _, err := store.Get(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after ttl, got %v", err)
	}
}

func TestRedisDelete(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	store := NewRedis(client, "s:", time.Minute)
	ctx := context.Background()

	_ = store.Save(ctx, &domain.Session{UserID: 9, Step: domain.StepGuestName})
	if err := store.Delete(ctx, 9); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
