package sessions

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"GuestReportBot/internal/models/domain"
)

func TestJanitorSweepsExpired(t *testing.T) {
	store := NewMemory(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	if err := store.Save(context.Background(), &domain.Session{UserID: 1, Step: domain.StepCity}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	later := now.Add(2 * time.Minute)
	store.now = func() time.Time { return later }

	j := NewJanitor(slog.New(slog.NewTextHandler(io.Discard, nil)), store, 5*time.Millisecond)
	go j.Start()

	deadline := time.Now().Add(time.Second)
	for store.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("janitor did not sweep the expired session")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := j.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := j.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
