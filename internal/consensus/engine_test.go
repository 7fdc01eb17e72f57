package consensus

import (
	"context"
	"errors"
	"testing"

	"github.com/assurnet/vigil/internal/domain"
)

func TestCombineTruthTable(t *testing.T) {
	tests := []struct {
		name      string
		primary   domain.ScoreResult
		secondary domain.SecondarySignal
		wantFraud bool
		wantRisk  string
		wantAlert bool
	}{
		{
			name:      "both clean",
			primary:   domain.ScoreResult{Fraud: false, Probability: 0.10},
			secondary: domain.SecondarySignal{},
			wantFraud: false,
			wantRisk:  domain.RiskLow,
		},
		{
			name:      "clean verdict suppresses secondary alert flag",
			primary:   domain.ScoreResult{Fraud: false, Probability: 0.10},
			secondary: domain.SecondarySignal{AlertTriggered: true},
			wantFraud: false,
			wantRisk:  domain.RiskLow,
			wantAlert: false,
		},
		{
			name:      "primary fraud high probability",
			primary:   domain.ScoreResult{Fraud: true, Probability: 0.85},
			secondary: domain.SecondarySignal{AlertTriggered: true},
			wantFraud: true,
			wantRisk:  domain.RiskHigh,
			wantAlert: true,
		},
		{
			name:      "primary fraud medium probability",
			primary:   domain.ScoreResult{Fraud: true, Probability: 0.55},
			secondary: domain.SecondarySignal{},
			wantFraud: true,
			wantRisk:  domain.RiskMedium,
		},
		{
			name:      "primary fraud low probability",
			primary:   domain.ScoreResult{Fraud: true, Probability: 0.25},
			secondary: domain.SecondarySignal{},
			wantFraud: true,
			wantRisk:  domain.RiskLow,
		},
		{
			name:      "consensus overrides low probability",
			primary:   domain.ScoreResult{Fraud: false, Probability: 0.10},
			secondary: domain.SecondarySignal{ConsensusFraud: true, AlertTriggered: true},
			wantFraud: true,
			wantRisk:  domain.RiskHigh,
			wantAlert: true,
		},
		{
			name:      "boundary probability 0.70 is high",
			primary:   domain.ScoreResult{Fraud: true, Probability: 0.70},
			secondary: domain.SecondarySignal{},
			wantFraud: true,
			wantRisk:  domain.RiskHigh,
		},
		{
			name:      "boundary probability 0.40 is medium",
			primary:   domain.ScoreResult{Fraud: true, Probability: 0.40},
			secondary: domain.SecondarySignal{},
			wantFraud: true,
			wantRisk:  domain.RiskMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Combine(tt.primary, tt.secondary)
			if got.FinalFraud != tt.wantFraud {
				t.Errorf("FinalFraud = %v, want %v", got.FinalFraud, tt.wantFraud)
			}
			if got.RiskLevel != tt.wantRisk {
				t.Errorf("RiskLevel = %s, want %s", got.RiskLevel, tt.wantRisk)
			}
			if got.AlertTriggered != tt.wantAlert {
				t.Errorf("AlertTriggered = %v, want %v", got.AlertTriggered, tt.wantAlert)
			}
		})
	}
}

type fakeSink struct {
	created []string
	err     error
}

func (f *fakeSink) Create(_ context.Context, entityID string, probability float64) (*domain.Alert, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, entityID)
	return &domain.Alert{
		ID:               uint64(len(f.created)),
		EntityID:         entityID,
		FraudProbability: probability,
		Priority:         domain.AlertPriority(probability),
	}, nil
}

type fakeNotifier struct {
	calls int
}

func (f *fakeNotifier) FraudAlert(_ context.Context, _ *domain.Alert, _ domain.ConsensusDecision) {
	f.calls++
}

func TestDecideEscalates(t *testing.T) {
	sink := &fakeSink{}
	notifier := &fakeNotifier{}
	engine := NewEngine(sink, notifier, nil)

	primary := domain.ScoreResult{Fraud: true, Probability: 0.92}
	secondary := domain.SecondarySignal{AlertTriggered: true}

	decision, alert := engine.Decide(context.Background(), "CTR-001", primary, secondary)
	if !decision.FinalFraud {
		t.Fatal("expected fraud decision")
	}
	if alert == nil {
		t.Fatal("expected alert to be created")
	}
	if alert.EntityID != "CTR-001" {
		t.Errorf("unexpected alert entity: %s", alert.EntityID)
	}
	if notifier.calls != 1 {
		t.Errorf("expected 1 notification, got %d", notifier.calls)
	}
}

func TestDecideNoAlertWithoutTrigger(t *testing.T) {
	sink := &fakeSink{}
	engine := NewEngine(sink, nil, nil)

	primary := domain.ScoreResult{Fraud: true, Probability: 0.92}
	secondary := domain.SecondarySignal{AlertTriggered: false}

	decision, alert := engine.Decide(context.Background(), "CTR-002", primary, secondary)
	if !decision.FinalFraud {
		t.Fatal("expected fraud decision")
	}
	if alert != nil {
		t.Error("alert created despite unset trigger flag")
	}
	if len(sink.created) != 0 {
		t.Errorf("sink received %d alerts, want 0", len(sink.created))
	}
}

func TestDecideNoAlertWhenClean(t *testing.T) {
	sink := &fakeSink{}
	engine := NewEngine(sink, nil, nil)

	primary := domain.ScoreResult{Fraud: false, Probability: 0.10}
	secondary := domain.SecondarySignal{AlertTriggered: true}

	_, alert := engine.Decide(context.Background(), "CTR-003", primary, secondary)
	if alert != nil {
		t.Error("alert created for a clean decision")
	}
}

func TestDecideSurvivesSinkFailure(t *testing.T) {
	sink := &fakeSink{err: errors.New("store down")}
	notifier := &fakeNotifier{}
	engine := NewEngine(sink, notifier, nil)

	primary := domain.ScoreResult{Fraud: true, Probability: 0.92}
	secondary := domain.SecondarySignal{AlertTriggered: true}

	decision, alert := engine.Decide(context.Background(), "CTR-004", primary, secondary)
	if !decision.FinalFraud || decision.RiskLevel != domain.RiskHigh {
		t.Errorf("decision degraded by sink failure: %+v", decision)
	}
	if alert != nil {
		t.Error("expected nil alert on sink failure")
	}
	if notifier.calls != 0 {
		t.Error("notifier called despite sink failure")
	}
}
