// Package notify broadcasts fraud events to real-time subscribers over the
// event bus and the websocket hub. Every publication is fire-and-forget: a
// failing bus never fails the operation that triggered the notification.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/assurnet/vigil/internal/domain"
)

// Notification types carried in the payload.
const (
	TypeFraudAlert  = "FRAUD_ALERT"
	TypeAlertUpdate = "ALERT_UPDATE"
	TypeFraudCase   = "FRAUD_CASE"
	TypeStatistics  = "STATISTICS"
)

// Publisher builds notification payloads and publishes them to the bus.
type Publisher struct {
	bus    domain.EventBus
	logger *slog.Logger
}

// NewPublisher creates a notification publisher.
func NewPublisher(bus domain.EventBus, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{bus: bus, logger: logger}
}

// FraudAlert announces a newly raised alert.
func (p *Publisher) FraudAlert(ctx context.Context, alert *domain.Alert, decision domain.ConsensusDecision) {
	n := &domain.Notification{
		Type:    TypeFraudAlert,
		Title:   "Fraud alert",
		Message: fmt.Sprintf("Suspected fraud on %s (risk %s)", alert.EntityID, decision.RiskLevel),
		Data: map[string]any{
			"alertId":          alert.ID,
			"entityId":         alert.EntityID,
			"riskLevel":        decision.RiskLevel,
			"fraudProbability": alert.FraudProbability,
		},
		Timestamp: time.Now().UTC(),
		Priority:  alert.Priority,
		ActionURL: fmt.Sprintf("/alerts/%d", alert.ID),
	}

	p.publish(ctx, domain.TopicFraudAlerts, n)
	p.publish(ctx, domain.TopicNotifications, n)
}

// AlertUpdated announces an alert status change.
func (p *Publisher) AlertUpdated(ctx context.Context, alert *domain.Alert) {
	n := &domain.Notification{
		Type:    TypeAlertUpdate,
		Title:   "Alert updated",
		Message: fmt.Sprintf("Alert %d moved to %s", alert.ID, alert.Status),
		Data: map[string]any{
			"alertId":    alert.ID,
			"entityId":   alert.EntityID,
			"status":     alert.Status,
			"reviewedBy": alert.ReviewedBy,
		},
		Timestamp: time.Now().UTC(),
		Priority:  alert.Priority,
		ActionURL: fmt.Sprintf("/alerts/%d", alert.ID),
	}

	p.publish(ctx, domain.TopicAlertUpdates, n)
}

// CaseRecorded announces a persisted fraud case.
func (p *Publisher) CaseRecorded(ctx context.Context, fraudCase *domain.FraudCase) {
	n := &domain.Notification{
		Type:    TypeFraudCase,
		Title:   "Fraud case recorded",
		Message: fmt.Sprintf("%s %s scored %d (%s)", fraudCase.EntityType, fraudCase.EntityID, fraudCase.Score, fraudCase.RiskLevel),
		Data: map[string]any{
			"entityType": fraudCase.EntityType,
			"entityId":   fraudCase.EntityID,
			"score":      fraudCase.Score,
			"riskLevel":  fraudCase.RiskLevel,
			"reason":     fraudCase.Reason,
		},
		Timestamp: time.Now().UTC(),
		Priority:  fraudCase.RiskLevel,
	}

	p.publish(ctx, domain.TopicNotifications, n)
}

// StatisticsChanged broadcasts a fresh statistics snapshot.
func (p *Publisher) StatisticsChanged(ctx context.Context, stats domain.Statistics) {
	n := &domain.Notification{
		Type:      TypeStatistics,
		Title:     "Statistics updated",
		Message:   fmt.Sprintf("%d analyses, %d frauds detected", stats.TotalTests, stats.FraudsDetected),
		Data:      map[string]any{"statistics": stats},
		Timestamp: time.Now().UTC(),
		Priority:  domain.RiskLow,
	}

	p.publish(ctx, domain.TopicStatistics, n)
}

func (p *Publisher) publish(ctx context.Context, topic string, n *domain.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		p.logger.Warn("notification marshal failed", "type", n.Type, "error", err)
		return
	}

	if err := p.bus.Publish(ctx, topic, payload); err != nil {
		p.logger.Warn("notification publish failed",
			"topic", topic,
			"type", n.Type,
			"error", err)
	}
}
