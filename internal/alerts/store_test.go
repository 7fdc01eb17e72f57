package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/assurnet/vigil/internal/domain"
)

func TestCreateAssignsPriority(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tests := []struct {
		probability float64
		want        string
	}{
		{0.95, domain.RiskCritical},
		{0.90, domain.RiskCritical},
		{0.75, domain.RiskHigh},
		{0.55, domain.RiskMedium},
		{0.30, domain.RiskLow},
	}

	for _, tt := range tests {
		alert, err := store.Create(ctx, "CTR-001", tt.probability)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if alert.Priority != tt.want {
			t.Errorf("probability %.2f: priority = %s, want %s", tt.probability, alert.Priority, tt.want)
		}
		if alert.Status != domain.AlertStatusNew {
			t.Errorf("new alert status = %s, want NEW", alert.Status)
		}
	}
}

func TestCreateConcurrentIDs(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	const n = 200
	ids := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alert, err := store.Create(ctx, "CTR-777", 0.8)
			if err != nil {
				t.Error(err)
				return
			}
			ids <- alert.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool, n)
	var max uint64
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate alert id %d", id)
		}
		seen[id] = true
		if id > max {
			max = id
		}
	}
	if len(seen) != n {
		t.Fatalf("expected %d unique ids, got %d", n, len(seen))
	}
	if max != n {
		t.Errorf("expected max id %d, got %d", n, max)
	}
}

func TestUpdateStatusUnknownID(t *testing.T) {
	store := NewStore()

	_, err := store.UpdateStatus(context.Background(), 42, domain.AlertStatusResolved, "analyst", "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatusInvalid(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	alert, _ := store.Create(ctx, "CTR-002", 0.8)
	_, err := store.UpdateStatus(ctx, alert.ID, "ESCALATED", "analyst", "")
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestUpdateStatusReviewFields(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	alert, _ := store.Create(ctx, "CTR-003", 0.8)
	updated, err := store.UpdateStatus(ctx, alert.ID, domain.AlertStatusInReview, "marie", "checking documents")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ReviewedBy != "marie" || updated.Comments != "checking documents" {
		t.Errorf("review fields not set: %+v", updated)
	}
	if !updated.LastUpdated.After(alert.LastUpdated) && !updated.LastUpdated.Equal(alert.LastUpdated) {
		t.Error("LastUpdated went backwards")
	}
}

func TestFalsePositiveCountedOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	alert, _ := store.Create(ctx, "CTR-004", 0.8)

	store.UpdateStatus(ctx, alert.ID, domain.AlertStatusFalsePositive, "a", "")
	store.UpdateStatus(ctx, alert.ID, domain.AlertStatusFalsePositive, "b", "")

	stats := store.Statistics()
	if stats.FalsePositives != 1 {
		t.Errorf("false positives = %d, want 1", stats.FalsePositives)
	}

	// Leaving and re-entering FALSE_POSITIVE counts again.
	store.UpdateStatus(ctx, alert.ID, domain.AlertStatusInReview, "a", "")
	store.UpdateStatus(ctx, alert.ID, domain.AlertStatusFalsePositive, "a", "")
	if stats := store.Statistics(); stats.FalsePositives != 2 {
		t.Errorf("false positives = %d, want 2", stats.FalsePositives)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.Create(ctx, "CTR-005", 0.8); err != nil {
			t.Fatal(err)
		}
	}

	list := store.List(ctx)
	if len(list) != 5 {
		t.Fatalf("expected 5 alerts, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		prev, cur := list[i-1], list[i]
		if cur.Timestamp.After(prev.Timestamp) {
			t.Errorf("alerts not newest-first at %d", i)
		}
		if cur.Timestamp.Equal(prev.Timestamp) && cur.ID > prev.ID {
			t.Errorf("equal-timestamp alerts not ordered by id at %d", i)
		}
	}
}

func TestStatisticsSnapshot(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	// Counters only move when an alert is created
	if stats := store.Statistics(); stats.TotalTests != 0 || stats.FraudsDetected != 0 {
		t.Errorf("fresh store counters = %d/%d, want 0/0", stats.TotalTests, stats.FraudsDetected)
	}

	a1, _ := store.Create(ctx, "CTR-006", 0.95) // CRITICAL
	store.Create(ctx, "CTR-007", 0.75)          // HIGH
	store.UpdateStatus(ctx, a1.ID, domain.AlertStatusResolved, "a", "")

	stats := store.Statistics()
	if stats.TotalTests != 2 {
		t.Errorf("total tests = %d, want 2", stats.TotalTests)
	}
	if stats.FraudsDetected != 2 {
		t.Errorf("frauds detected = %d, want 2", stats.FraudsDetected)
	}
	if stats.CriticalAlerts != 1 {
		t.Errorf("critical alerts = %d, want 1", stats.CriticalAlerts)
	}
	if stats.StatusCounts[domain.AlertStatusResolved] != 1 || stats.StatusCounts[domain.AlertStatusNew] != 1 {
		t.Errorf("unexpected status counts: %v", stats.StatusCounts)
	}
	if stats.LastUpdate.IsZero() {
		t.Error("last update not set")
	}
}

func TestMutationsDoNotLeakStoreState(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	alert, _ := store.Create(ctx, "CTR-008", 0.8)
	alert.Status = "TAMPERED"

	fresh, err := store.GetByID(ctx, alert.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Status != domain.AlertStatusNew {
		t.Errorf("store state mutated through returned alert: %s", fresh.Status)
	}
}
