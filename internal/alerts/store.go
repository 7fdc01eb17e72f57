// Package alerts implements the in-memory fraud alert store and the
// aggregate statistics derived from it.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/assurnet/vigil/internal/domain"
)

var (
	// ErrNotFound is returned when an alert ID does not exist.
	ErrNotFound = errors.New("alert not found")

	// ErrInvalidStatus is returned for an unrecognized alert status.
	ErrInvalidStatus = errors.New("invalid alert status")
)

// Store holds alerts in memory. Alerts are intentionally volatile; durable
// fraud cases live in the repository.
type Store struct {
	mu     sync.RWMutex
	alerts map[uint64]*domain.Alert
	nextID atomic.Uint64

	totalTests     atomic.Int64
	fraudsDetected atomic.Int64
	falsePositives atomic.Int64

	lastUpdateMu sync.Mutex
	lastUpdate   time.Time
}

// NewStore creates an empty alert store.
func NewStore() *Store {
	return &Store{alerts: make(map[uint64]*domain.Alert)}
}

// Create records a new alert for an entity. IDs are strictly increasing
// across concurrent callers.
func (s *Store) Create(ctx context.Context, entityID string, probability float64) (*domain.Alert, error) {
	if entityID == "" {
		return nil, fmt.Errorf("entityID is required")
	}

	now := time.Now().UTC()
	alert := &domain.Alert{
		ID:               s.nextID.Add(1),
		EntityID:         entityID,
		Timestamp:        now,
		Status:           domain.AlertStatusNew,
		Priority:         domain.AlertPriority(probability),
		FraudProbability: probability,
		LastUpdated:      now,
	}

	s.mu.Lock()
	s.alerts[alert.ID] = alert
	s.mu.Unlock()

	// Counters advance exactly once per alert creation, never per analysis.
	s.totalTests.Add(1)
	s.fraudsDetected.Add(1)

	s.touch(now)

	clone := *alert
	return &clone, nil
}

// GetByID returns a single alert.
func (s *Store) GetByID(ctx context.Context, id uint64) (*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *alert
	return &clone, nil
}

// UpdateStatus transitions an alert to a new status. Any valid status can
// follow any other; review metadata is overwritten each time.
func (s *Store) UpdateStatus(ctx context.Context, id uint64, status, reviewedBy, comments string) (*domain.Alert, error) {
	if !domain.ValidAlertStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	s.mu.Lock()
	alert, ok := s.alerts[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	if status == domain.AlertStatusFalsePositive && alert.Status != domain.AlertStatusFalsePositive {
		s.falsePositives.Add(1)
	}

	now := time.Now().UTC()
	alert.Status = status
	alert.ReviewedBy = reviewedBy
	alert.Comments = comments
	alert.LastUpdated = now

	clone := *alert
	s.mu.Unlock()

	s.touch(now)

	return &clone, nil
}

// List returns all alerts, newest first. Alerts sharing a timestamp are
// ordered by descending ID so the order is stable.
func (s *Store) List(ctx context.Context) []*domain.Alert {
	s.mu.RLock()
	out := make([]*domain.Alert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		clone := *alert
		out = append(out, &clone)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})

	return out
}

// Statistics returns an aggregate snapshot. RecentAnalyses is left for the
// caller to fill from the rolling counter.
func (s *Store) Statistics() domain.Statistics {
	s.mu.RLock()
	statusCounts := make(map[string]int64, 4)
	var critical int64
	for _, alert := range s.alerts {
		statusCounts[alert.Status]++
		if alert.Priority == domain.RiskCritical {
			critical++
		}
	}
	s.mu.RUnlock()

	s.lastUpdateMu.Lock()
	lastUpdate := s.lastUpdate
	s.lastUpdateMu.Unlock()

	return domain.Statistics{
		TotalTests:     s.totalTests.Load(),
		FraudsDetected: s.fraudsDetected.Load(),
		CriticalAlerts: critical,
		FalsePositives: s.falsePositives.Load(),
		LastUpdate:     lastUpdate,
		StatusCounts:   statusCounts,
	}
}

func (s *Store) touch(t time.Time) {
	s.lastUpdateMu.Lock()
	if t.After(s.lastUpdate) {
		s.lastUpdate = t
	}
	s.lastUpdateMu.Unlock()
}
