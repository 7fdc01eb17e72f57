// Package worker provides async claim processing from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/assurnet/vigil/internal/domain"
	"github.com/assurnet/vigil/internal/notify"
	"github.com/assurnet/vigil/internal/rules"
)

// Worker consumes submitted claims from the EventBus, scores them and
// records fraud cases for the ones that cross the persistence threshold.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	scorer    *rules.Scorer
	publisher *notify.Publisher

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// NewWorker creates a new claim worker. The publisher is optional.
func NewWorker(bus domain.EventBus, repo domain.Repository, scorer *rules.Scorer, publisher *notify.Publisher) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		scorer:    scorer,
		publisher: publisher,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the claim submission topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicClaimSubmitted, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicClaimSubmitted, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("claim worker started", "topic", domain.TopicClaimSubmitted)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	if err := w.processClaim(ctx, msg); err != nil {
		w.failed.Add(1)
		return err
	}
	w.processed.Add(1)
	return nil
}

// processClaim scores a single submitted claim and persists the resulting
// case when warranted. Malformed payloads are dropped, not retried.
func (w *Worker) processClaim(ctx context.Context, msg *domain.Message) error {
	var claim domain.Claim
	if err := json.Unmarshal(msg.Payload, &claim); err != nil {
		slog.Error("failed to parse claim message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if fields := claim.Validate(); len(fields) > 0 {
		slog.Warn("dropping invalid claim message",
			"message_id", msg.ID,
			"fields", fields,
		)
		return fmt.Errorf("invalid claim payload: %v", fields)
	}

	assessment := w.scorer.Assess(ctx, &claim)
	caseScore := int(math.Round(assessment.Score * 100))

	slog.Debug("claim scored",
		"claim_id", claim.ClaimID,
		"score", assessment.Score,
		"risk_level", assessment.RiskLevel,
	)

	if caseScore < domain.CaseThreshold {
		return nil
	}

	if err := w.repo.RecordCase(ctx, domain.EntityClaim, claim.ClaimID, caseScore, assessment.Reason); err != nil {
		slog.Error("failed to record claim case",
			"claim_id", claim.ClaimID,
			"error", err,
		)
		return err
	}

	if w.publisher != nil {
		if fraudCase, err := w.repo.GetCase(ctx, domain.EntityClaim, claim.ClaimID); err == nil {
			w.publisher.CaseRecorded(ctx, fraudCase)
		}
	}

	slog.Info("claim case recorded",
		"claim_id", claim.ClaimID,
		"case_score", caseScore,
		"risk_level", domain.CaseRiskLevel(caseScore),
	)

	return nil
}

// Stats returns the number of claims processed and failed so far.
func (w *Worker) Stats() (processed, failed int64) {
	return w.processed.Load(), w.failed.Load()
}

// Stop unsubscribes and waits for in-flight claims to finish.
func (w *Worker) Stop() {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe worker", "topic", sub.Topic(), "error", err)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()
	slog.Info("claim worker stopped")
}
