package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/davidbond17/pingpro/internal/store"
	"github.com/davidbond17/pingpro/pkg/types"
)

func TestRunOncePurgesExpiredSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()

	for id, age := range map[string]time.Duration{
		"old":    31 * 24 * time.Hour,
		"recent": 29 * 24 * time.Hour,
		"today":  time.Hour,
	} {
		s := types.Session{ID: id, StartTime: now.Add(-age), Host: "8.8.8.8"}
		if err := st.SaveSession(ctx, s); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}

	c := New(st, 30*24*time.Hour, WithNow(func() time.Time { return now }))
	removed, err := c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 purged session got %d", removed)
	}
	if _, err := st.GetSession(ctx, "old"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected old session purged, got %v", err)
	}
	if _, err := st.GetSession(ctx, "recent"); err != nil {
		t.Fatalf("expected recent session kept: %v", err)
	}
}

type failingPurger struct{}

func (failingPurger) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, errors.New("locked")
}

func TestRunOnceWrapsErrors(t *testing.T) {
	c := New(failingPurger{}, time.Hour)
	if _, err := c.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunOnceDisabled(t *testing.T) {
	c := New(failingPurger{}, 0)
	if n, err := c.RunOnce(context.Background()); err != nil || n != 0 {
		t.Fatalf("expected disabled cleaner to skip, got %d %v", n, err)
	}
	c.SetPeriod(time.Hour)
	if c.Period() != time.Hour {
		t.Fatalf("expected period update")
	}
}
