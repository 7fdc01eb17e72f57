// Package consensus combines the verdicts of both scoring backends into a
// single fraud decision and escalates confirmed frauds to alerts.
package consensus

import (
	"context"
	"log/slog"

	"github.com/assurnet/vigil/internal/domain"
)

// Probability bands for fraud verdicts without a consensus confirmation.
const (
	highProbabilityFloor   = 0.70
	mediumProbabilityFloor = 0.40
)

// AlertSink receives escalated decisions. Implemented by the alert store.
type AlertSink interface {
	Create(ctx context.Context, entityID string, probability float64) (*domain.Alert, error)
}

// Notifier broadcasts escalated decisions to real-time subscribers.
type Notifier interface {
	FraudAlert(ctx context.Context, alert *domain.Alert, decision domain.ConsensusDecision)
}

// Engine merges both backend verdicts and performs the escalation side
// effects. Escalation is best-effort: a failing alert store or notifier
// never fails the decision itself.
type Engine struct {
	alerts   AlertSink
	notifier Notifier
	logger   *slog.Logger
}

// NewEngine creates a consensus engine. The sink and notifier may be nil,
// in which case decisions are computed but never escalated.
func NewEngine(alerts AlertSink, notifier Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{alerts: alerts, notifier: notifier, logger: logger}
}

// Combine merges the two backend verdicts without side effects.
//
// A consensus confirmation from the secondary backend forces HIGH risk
// regardless of probability. Otherwise a fraud verdict is banded by the
// primary probability, and a clean verdict is always LOW.
func Combine(primary domain.ScoreResult, secondary domain.SecondarySignal) domain.ConsensusDecision {
	finalFraud := primary.Fraud || secondary.ConsensusFraud

	var risk string
	switch {
	case secondary.ConsensusFraud:
		risk = domain.RiskHigh
	case finalFraud && primary.Probability >= highProbabilityFloor:
		risk = domain.RiskHigh
	case finalFraud && primary.Probability >= mediumProbabilityFloor:
		risk = domain.RiskMedium
	default:
		risk = domain.RiskLow
	}

	return domain.ConsensusDecision{
		FinalFraud: finalFraud,
		RiskLevel:  risk,
		// Alerts never fire without a fraud verdict; the secondary flag
		// alone is not enough.
		AlertTriggered: finalFraud && secondary.AlertTriggered,
	}
}

// Decide merges both verdicts and, when the decision is fraud with the
// alert flag set, records an alert and notifies subscribers. The returned
// alert is nil when no escalation happened or the store rejected it.
func (e *Engine) Decide(ctx context.Context, entityID string, primary domain.ScoreResult, secondary domain.SecondarySignal) (domain.ConsensusDecision, *domain.Alert) {
	decision := Combine(primary, secondary)

	if !decision.FinalFraud || !decision.AlertTriggered {
		return decision, nil
	}

	if e.alerts == nil {
		return decision, nil
	}

	alert, err := e.alerts.Create(ctx, entityID, primary.Probability)
	if err != nil {
		e.logger.Warn("alert escalation failed",
			"entityId", entityID,
			"error", err)
		return decision, nil
	}

	e.logger.Info("fraud alert raised",
		"alertId", alert.ID,
		"entityId", entityID,
		"riskLevel", decision.RiskLevel,
		"priority", alert.Priority)

	if e.notifier != nil {
		e.notifier.FraudAlert(ctx, alert, decision)
	}

	return decision, alert
}
