package retention

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kleaSCM/sentinel/internal/storage"
)

type fakeStore struct {
	storage.Storage
	calls int
	days  int
}

func (f *fakeStore) CleanupOldData(ctx context.Context, days int) (int64, int64, error) {
	f.calls++
	f.days = days
	return 5, 2, nil
}

func TestScheduler_RunOnceCallsCleanupWithConfiguredDays(t *testing.T) {
	store := &fakeStore{}
	s := New(store, 30, zap.NewNop())

	s.runOnce(context.Background())

	if store.calls != 1 {
		t.Fatalf("expected 1 cleanup call, got %d", store.calls)
	}
	if store.days != 30 {
		t.Fatalf("expected retention days 30, got %d", store.days)
	}
}
